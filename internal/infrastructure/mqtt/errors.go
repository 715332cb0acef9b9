package mqtt

import "errors"

// Errors returned by the feed client. Failures of broker round-trips wrap
// one of the operation errors, plus ErrTimeout when the broker did not
// answer in time.
var (
	ErrNotConnected     = errors.New("mqtt: not connected to the observation broker")
	ErrConnectionFailed = errors.New("mqtt: connecting to the observation broker failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscription change failed")
	ErrTimeout          = errors.New("mqtt: broker did not answer")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrPayloadTooLarge is returned for payloads above 1MB.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
