package mqtt

import "errors"

// Sentinel errors; match with errors.Is.
var (
	// ErrNotConnected is returned by Publish while the broker link is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the cause of a failed initial Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps a broker-side publish failure or timeout.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned for a QoS outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic is returned for an empty topic or one containing
	// wildcards, which are only legal in subscriptions.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
