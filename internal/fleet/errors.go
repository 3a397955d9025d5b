package fleet

import "errors"

// Sentinel errors returned by the fleet stores and coordinator. Handlers map
// these onto problem+json responses; everything else is an internal error.
var (
	ErrNotFound        = errors.New("not found")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrInvalidInterval = errors.New("interval must be greater than zero")
	ErrInvalidStatus   = errors.New("status must be completed or failed")
)
