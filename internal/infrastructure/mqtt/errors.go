package mqtt

import "errors"

var (
	// ErrDisabled is returned by Connect when mqtt.enabled is false.
	ErrDisabled = errors.New("mqtt: disabled in configuration")

	// ErrConnectionFailed wraps dial and handshake failures in Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned by Publish and HealthCheck while the
	// broker is unreachable.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps broker rejections, encoding failures and
	// oversized payloads.
	ErrPublishFailed = errors.New("mqtt: publish failed")
	ErrTimeout       = errors.New("mqtt: operation timed out")

	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
