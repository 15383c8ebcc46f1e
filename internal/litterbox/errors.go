package litterbox

import "errors"

// Sentinel errors for the litterbox package.
var (
	// ErrUpdateFailed wraps any failure of a refresh cycle. The cause is
	// preserved and can be matched with errors.Is.
	ErrUpdateFailed = errors.New("litterbox: update failed")

	// ErrDecode indicates the property map lacked an expected field.
	ErrDecode = errors.New("litterbox: cannot decode device properties")

	// ErrUnknownService is returned for service names other than
	// clean, level and dump.
	ErrUnknownService = errors.New("litterbox: unknown service")

	// ErrUnknownProperty is returned when a property key is not writable.
	ErrUnknownProperty = errors.New("litterbox: unknown property")

	// ErrDeviceNotFound indicates the configured iotId is not bound to the account.
	ErrDeviceNotFound = errors.New("litterbox: device not found in account")

	// ErrUnknownEntity is returned for entity keys outside the catalogue.
	ErrUnknownEntity = errors.New("litterbox: unknown entity")

	// ErrInvalidAction is returned when an action does not apply to an
	// entity, such as pressing a switch or turning on a sensor.
	ErrInvalidAction = errors.New("litterbox: action not supported by entity")

	// ErrNoSnapshot is returned when no refresh has succeeded yet.
	ErrNoSnapshot = errors.New("litterbox: no device data yet")
)
