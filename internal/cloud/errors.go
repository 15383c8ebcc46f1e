package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cloud package.
var (
	// ErrAuth indicates the vendor rejected the credentials or session.
	ErrAuth = errors.New("cloud: authentication failed")

	// ErrConnection indicates a transport failure or a non-success response
	// that is not related to credentials.
	ErrConnection = errors.New("cloud: connection failed")

	// ErrDecode indicates a response was missing an expected field.
	ErrDecode = errors.New("cloud: unexpected response shape")

	// ErrUnsupportedCountry indicates the country has no known area code.
	ErrUnsupportedCountry = errors.New("cloud: unsupported country")
)

// ErrNotConnected is returned by device calls made before Connect succeeds.
// It matches ErrConnection under errors.Is.
var ErrNotConnected = fmt.Errorf("%w: API not connected, call Connect first", ErrConnection)
