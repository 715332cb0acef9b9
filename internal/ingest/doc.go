// Package ingest stores observation messages received over MQTT.
//
// Publishers send one JSON Message per station and datetime to
// obsarchive/observations/{report}/{station}. The Service decodes each
// message against the archive's vartable, queues it, and writes queued
// messages in one archive transaction when the batch is full or the flush
// interval elapses.
//
// Conflicts with stored values follow the configured batch.Policy. With
// RetryAsUpdate a batch refused for a duplicate is written again with the
// update policy. Committed values are mirrored to InfluxDB when an
// Exporter is attached, and counters are exported to Prometheus.
//
// Usage:
//
//	svc := ingest.New(arch, ingest.Config{BatchSize: 100, FlushInterval: time.Second},
//	    ingest.WithBroker(mqttClient), ingest.WithLogger(logger.Component("ingest")))
//	err := svc.Run(ctx)
package ingest
