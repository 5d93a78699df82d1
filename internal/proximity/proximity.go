// Package proximity abstracts the short-range radio used to prove that the
// code-issuing device is physically present. The teacher device broadcasts a
// random token for the lifetime of a code; student devices scan for it and
// report a match. Real deployments back these interfaces with platform BLE
// APIs; tests and the simulator use the in-process Bus.
package proximity

import (
	"context"
	"errors"
)

// ErrHardwareUnavailable is returned when the radio is unsupported, disabled
// or permission was denied. Callers must treat it as "no proximity evidence",
// never as a silent success.
var ErrHardwareUnavailable = errors.New("proximity: radio unavailable")

// Advertiser broadcasts a token over short-range radio.
type Advertiser interface {
	// Start generates a fresh token and begins broadcasting it. It returns
	// the token only once broadcasting has actually started; failure to
	// broadcast surfaces as an error.
	Start(ctx context.Context) (token string, err error)
	// Stop ends the broadcast. Stopping an already-stopped advertiser is a
	// no-op.
	Stop()
}

// Scanner listens for nearby advertisements.
type Scanner interface {
	// ScanFor listens until the expected token is heard or the context
	// expires. It returns true on the first match and false when the window
	// elapses unmatched. Hardware failure returns ErrHardwareUnavailable.
	ScanFor(ctx context.Context, expectedToken string) (bool, error)
}
