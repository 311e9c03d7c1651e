package dxgiscreengrab

import "fmt"

// openSessionFunc establishes one complete duplication bundle: device,
// command context, chosen output and a live duplication handle with a
// negotiated pixel format. The bundle either opens whole or not at all;
// there is no partially-initialized session.
//
// Each platform provides newPlatformSession; tests inject their own.
type openSessionFunc func(Config) (session, error)

// session is one exclusively-owned duplication bundle.
type session interface {
	// OutputBounds returns the dimensions of the duplicated display.
	OutputBounds() (width, height uint32)

	// Format returns the pixel format negotiated at initialization.
	Format() PixelFormat

	// CreateStaging allocates a CPU-readable staging texture of the
	// session's format with exactly the given dimensions.
	CreateStaging(width, height uint32) (stagingTexture, error)

	// AcquireFrame polls the duplication handle with zero wait. It returns
	// (nil, nil) when no new frame has been composed since the last poll.
	// Device-loss failures wrap errDeviceLost; anything else is fatal to
	// the current call.
	AcquireFrame() (frame, error)

	// Release drops the whole bundle. Safe to call more than once.
	Release()
}

// frame is a short-lived handle to one compositor-owned frame, borrowed
// between acquisition and Release. It must be released before the capture
// call returns, on every exit path.
type frame interface {
	// CopyTo issues a GPU-side copy of the (left, top, width, height)
	// sub-rectangle of the frame into the staging texture.
	CopyTo(dst stagingTexture, left, top, width, height uint32) error

	// Release hands the frame back to the duplication session.
	Release()
}

// stagingTexture is the CPU-readable surface used as the intermediate
// between GPU-resident frame data and host memory.
type stagingTexture interface {
	Map() (mapped, error)
	Release()
}

// mapped is a staging texture mapped for CPU reads. Rows are Pitch() bytes
// apart, which may exceed the logical row width due to GPU row alignment.
type mapped interface {
	Bytes() []byte
	Pitch() int
	Unmap()
}

// errDeviceLost tags acquisition failures caused by a recognized device-loss
// condition (access lost, device removed, device reset, session
// disconnected). Seeing it, the engine tears the session down and rebuilds
// it in place.
var errDeviceLost = fmt.Errorf("graphics device lost")
