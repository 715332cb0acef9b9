// Package influxdb exports archived observations to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, observation writing and health monitoring. The archive stays
// the system of record; the bucket is a dashboard-friendly mirror of the
// values each ingest flush committed.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, influxdb.WithErrorHandler(onWriteError))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteObservation(influxdb.Observation{Report: "synop", Var: "B12101", Number: &t, Time: when})
//	client.WriteFlush(influxdb.FlushSummary{Messages: 1, Values: 1, Took: took})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors go to the handler
// given to WithErrorHandler.
// Connection and health check errors are returned directly.
package influxdb
