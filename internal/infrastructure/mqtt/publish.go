package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outgoing messages at 1MB, the usual broker limit.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic. Retained messages are kept by the broker
// and handed to late subscribers; use them for state, not events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return wait(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// PublishRejected echoes a refused observation on the report's rejection
// topic. Rejections are events and are not retained.
func (c *Client) PublishRejected(report string, payload []byte) error {
	if report == "" {
		report = "unknown"
	}
	return c.Publish(Topics{}.Rejected(report), payload, byte(c.cfg.QoS), false)
}

// PublishIngestStats replaces the retained ingest counters.
func (c *Client) PublishIngestStats(payload []byte) error {
	return c.PublishRetained(Topics{}.IngestStats(), payload)
}

// publishStatus replaces the retained archive status.
func (c *Client) publishStatus(status, reason string) error {
	return c.PublishRetained(Topics{}.SystemStatus(), buildStatusPayload(c.cfg.Broker.ClientID, status, reason))
}

// wait blocks on token for at most defaultPublishTimeout and wraps any
// failure in kind.
func wait(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", kind, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
