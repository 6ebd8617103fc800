package mqtt

import "codeberg.org/mutker/cyclewatch/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("mqtt_invalid_config")

	// Connection errors
	ErrConnectFailed   = errors.ErrorCode("mqtt_connect_failed")
	ErrSubscribeFailed = errors.ErrorCode("mqtt_subscribe_failed")
	ErrPublishFailed   = errors.ErrorCode("mqtt_publish_failed")

	// Payload errors
	ErrMalformedPayload = errors.ErrorCode("mqtt_malformed_payload")
)
