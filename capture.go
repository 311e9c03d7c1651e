// Package dxgiscreengrab captures arbitrary sub-rectangles of a live desktop
// via the compositor's output-duplication session, returning tightly packed
// pixel bytes at interactive rates. The engine owns the graphics device,
// the duplication handle and a cached CPU-readable staging texture, and
// transparently rebuilds the whole bundle after transient device loss
// (driver reset, device removal, session disconnect).
package dxgiscreengrab

import (
	"fmt"
	"log/slog"
)

// PixelFormat is the channel layout negotiated with the duplicated output at
// session initialization. It is chosen by the driver, not by the caller;
// CaptureRegion returns bytes in this order.
type PixelFormat int

const (
	// FormatBGRA8 is 8 bits per channel, blue first. The standard desktop
	// format and the first one tried during negotiation.
	FormatBGRA8 PixelFormat = iota

	// FormatRGBA8 is 8 bits per channel, red first.
	FormatRGBA8

	// FormatRGBA16Float is 16-bit floating point per channel, used by HDR
	// outputs that reject both 8-bit orders.
	FormatRGBA16Float
)

func (f PixelFormat) String() string {
	switch f {
	case FormatBGRA8:
		return "bgra8"
	case FormatRGBA8:
		return "rgba8"
	case FormatRGBA16Float:
		return "rgba16f"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Config holds configuration for the capture engine.
type Config struct {
	// DisplayIndex specifies which output to duplicate (0 = primary).
	DisplayIndex int

	// Logger receives structured diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a default engine configuration.
func DefaultConfig() Config {
	return Config{DisplayIndex: 0}
}

// ErrRegionOutOfBounds is returned when the requested rectangle does not fit
// inside the duplicated output. The request is rejected before any GPU work.
var ErrRegionOutOfBounds = fmt.Errorf("requested region exceeds output bounds")

// ErrDeviceInit is returned when no hardware device, output, or duplication
// session could be created.
var ErrDeviceInit = fmt.Errorf("device initialization failed")

// ErrAllocation is returned when the staging texture could not be
// (re)allocated.
var ErrAllocation = fmt.Errorf("staging texture allocation failed")

// ErrTransientCapture is returned when frame acquisition failed due to a
// recognized device-loss condition. The session has already been rebuilt as
// a side effect, so the next capture is expected to succeed.
var ErrTransientCapture = fmt.Errorf("transient capture failure")

// ErrFatalCapture is returned when frame acquisition failed for an
// unrecognized reason. No recovery is attempted.
var ErrFatalCapture = fmt.Errorf("frame acquisition failed")

// ErrMapping is returned when the staging texture could not be mapped for
// CPU read access.
var ErrMapping = fmt.Errorf("staging texture mapping failed")

// ErrNotSupported is returned when desktop duplication is not available on
// the platform.
var ErrNotSupported = fmt.Errorf("desktop duplication not supported on this platform")

// New creates a capture engine and performs the first session
// initialization. It fails with an error matching ErrDeviceInit if no
// device/duplication/format combination can be established.
func New(cfg Config) (*Engine, error) {
	return newEngine(cfg, newPlatformSession)
}
