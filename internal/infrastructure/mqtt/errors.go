package mqtt

import "errors"

var (
	ErrDisabled         = errors.New("mqtt: disabled in configuration")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: not connected")

	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: QoS must be 0, 1 or 2")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)
