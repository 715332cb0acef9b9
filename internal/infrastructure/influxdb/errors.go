package influxdb

import "errors"

// Errors returned by Connect and HealthCheck. Write failures are
// asynchronous and go to the handler set with WithErrorHandler.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when export is switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
