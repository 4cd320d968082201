package driver

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfDate means the swapchain no longer matches its surface and
	// must be recreated before it can be used again.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal means the swapchain still works but no longer matches
	// the surface exactly.
	ErrSuboptimal = errors.New("swapchain suboptimal")
	ErrNotReady   = errors.New("not ready")
	ErrTimeout    = errors.New("timeout")
	ErrDeviceLost = errors.New("device lost")
	// ErrNoMemoryType means no memory type satisfies a resource's
	// requirements. It is a capability mismatch and never transient.
	ErrNoMemoryType = errors.New("no suitable memory type")
)

// IsSwapchainStale reports whether err asks for the swapchain to be
// recreated.
func IsSwapchainStale(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}
