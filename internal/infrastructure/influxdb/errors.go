package influxdb

import "errors"

var (
	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps ping failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
