// Package mqtt provides MQTT client connectivity for the observation feed.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions with wildcard support, restored after reconnects
//   - Publishing of ingest feedback (rejected messages, counters)
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Stations and decoders publish JSON observations to the broker; the ingest
// service subscribes and writes them to the archive in batches.
//
//	Publishers → MQTT Broker → ingest.Service → archive
//
// # Security Considerations
//
//   - TLS is recommended for deployments outside a trusted network (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithLogger(logger.Component("mqtt")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllObservations(), 1,
//	    func(topic string, payload []byte) error {
//	        report, _, _ := mqtt.ParseObservationTopic(topic)
//	        if err := store(payload); err != nil {
//	            return client.PublishRejected(report, payload)
//	        }
//	        return nil
//	    })
package mqtt
