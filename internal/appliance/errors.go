package appliance

import "codeberg.org/mutker/cyclewatch/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("appliance_invalid_config")

	// Reading errors
	ErrMalformedReading  = errors.ErrorCode("appliance_malformed_reading")
	ErrOutOfOrderReading = errors.ErrorCode("appliance_out_of_order_reading")
	ErrMalformedRate     = errors.ErrorCode("appliance_malformed_rate")

	// Lifecycle errors
	ErrNotReady      = errors.ErrorCode("appliance_not_ready")
	ErrRestoreFailed = errors.ErrorCode("appliance_restore_failed")
	ErrMonitorClosed = errors.ErrorCode("appliance_monitor_closed")
)
