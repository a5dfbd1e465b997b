// ABOUTME: Sentinel errors for pose transport
// ABOUTME: Rejection reasons are counted per session
package pose

import "errors"

var (
	// ErrStale is returned for updates older than the configured maximum age
	ErrStale = errors.New("pose update is stale")
	// ErrOutOfOrder is returned for updates older than one already accepted
	ErrOutOfOrder = errors.New("pose update out of order")
	// ErrInvalidMessage is returned for malformed or unknown messages
	ErrInvalidMessage = errors.New("invalid pose message")
	// ErrNotConnected is returned when sending on a closed client
	ErrNotConnected = errors.New("not connected")
	// ErrServerRunning is returned when starting a server twice
	ErrServerRunning = errors.New("pose server already running")
)
