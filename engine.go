package dxgiscreengrab

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// bytesPerPixel is the packed output pixel size. Capture results are always
// width*height*4 bytes regardless of the negotiated format.
const bytesPerPixel = 4

// diagLogEvery rate-limits poll diagnostics so an idle desktop (mostly
// empty polls) stays quiet in the logs.
const diagLogEvery = 500

// Engine is the capture state machine. It owns all graphics handles
// exclusively: a single duplication session plus a cached staging texture
// sized to the last-requested rectangle. Every operation runs to completion
// on the calling goroutine; an internal mutex serializes captures, but
// callers should still treat the engine as owned by one logical user.
type Engine struct {
	cfg  Config
	log  *slog.Logger
	open openSessionFunc

	mu       sync.Mutex
	session  session
	staging  stagingTexture
	stagingW uint32
	stagingH uint32
	outputW  uint32
	outputH  uint32
	format   PixelFormat

	diagEmpty  int // polls with no new frame
	diagFrames int // polls that produced a frame
}

func newEngine(cfg Config, open openSessionFunc) (*Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{cfg: cfg, log: log, open: open}
	if err := e.initialize(); err != nil {
		return nil, err
	}
	return e, nil
}

// initialize replaces the whole session bundle. Any prior session and
// staging texture are released first, so a failed attempt never leaves
// partially-initialized state behind and the staging cache is always forced
// to reallocate against the fresh session's format.
func (e *Engine) initialize() error {
	e.teardown()

	sess, err := e.open(e.cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceInit, err)
	}
	e.session = sess
	e.outputW, e.outputH = sess.OutputBounds()
	e.format = sess.Format()

	e.log.Info("duplication session initialized",
		"display", e.cfg.DisplayIndex,
		"width", e.outputW, "height", e.outputH,
		"format", e.format)
	return nil
}

// teardown releases the staging texture and the session bundle as a group.
// Idempotent.
func (e *Engine) teardown() {
	if e.staging != nil {
		e.staging.Release()
		e.staging = nil
	}
	e.stagingW, e.stagingH = 0, 0
	if e.session != nil {
		e.session.Release()
		e.session = nil
	}
}

// ensureStaging guarantees a CPU-readable staging texture exists with
// exactly the requested dimensions, reusing the current one whenever they
// match. Reuse is the primary per-frame optimization: steady-state capture
// of a fixed rectangle never reallocates.
func (e *Engine) ensureStaging(width, height uint32) error {
	if e.staging != nil && e.stagingW == width && e.stagingH == height {
		return nil
	}
	if e.staging != nil {
		e.staging.Release()
		e.staging = nil
	}
	e.stagingW, e.stagingH = 0, 0

	tex, err := e.session.CreateStaging(width, height)
	if err != nil {
		return fmt.Errorf("%w: %dx%d: %w", ErrAllocation, width, height, err)
	}
	e.staging = tex
	e.stagingW, e.stagingH = width, height
	return nil
}

// CaptureRegion extracts the (left, top, width, height) sub-rectangle of the
// current desktop frame as exactly width*height*4 packed bytes, rows top to
// bottom, channels in the negotiated Format order.
//
// When no new frame has been composed since the previous call, it returns a
// zero-filled buffer of the requested size rather than an error: the engine
// favors continuous low-latency sampling over always-fresh delivery.
//
// A recognized device-loss failure rebuilds the session in place and still
// reports ErrTransientCapture for the current call; the next call is
// expected to succeed against the fresh session.
func (e *Engine) CaptureRegion(left, top, width, height uint32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if uint64(left)+uint64(width) > uint64(e.outputW) ||
		uint64(top)+uint64(height) > uint64(e.outputH) {
		return nil, fmt.Errorf("%w: rect (%d,%d %dx%d) on %dx%d output",
			ErrRegionOutOfBounds, left, top, width, height, e.outputW, e.outputH)
	}

	if e.session == nil {
		if err := e.initialize(); err != nil {
			return nil, err
		}
	}
	if err := e.ensureStaging(width, height); err != nil {
		return nil, err
	}

	frm, err := e.session.AcquireFrame()
	if err != nil {
		if errors.Is(err, errDeviceLost) {
			return nil, e.recoverSession(width, height, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrFatalCapture, err)
	}
	if frm == nil {
		e.diagEmpty++
		e.logPollDiag()
		return make([]byte, int(width)*int(height)*bytesPerPixel), nil
	}
	defer frm.Release()

	e.diagFrames++
	e.logPollDiag()

	if err := frm.CopyTo(e.staging, left, top, width, height); err != nil {
		return nil, fmt.Errorf("%w: region copy: %w", ErrFatalCapture, err)
	}
	return e.readback(width, height)
}

// readback maps the staging texture and packs the mapped rows, whose pitch
// is backend-defined, into a buffer with rows of exactly width*4 bytes.
func (e *Engine) readback(width, height uint32) ([]byte, error) {
	m, err := e.staging.Map()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapping, err)
	}
	defer m.Unmap()

	rowBytes := int(width) * bytesPerPixel
	out := make([]byte, rowBytes*int(height))
	packRows(out, m.Bytes(), int(height), rowBytes, m.Pitch())
	return out, nil
}

// recoverSession handles a recognized device-loss condition: the whole
// bundle is rebuilt in place, together with a staging texture for the
// current rectangle, so the next capture can succeed. The current call
// still reports the original acquisition failure. If the rebuild itself
// fails, the session is left absent and the next call re-initializes
// lazily.
func (e *Engine) recoverSession(width, height uint32, cause error) error {
	e.log.Warn("device loss during acquisition, reinitializing session",
		"display", e.cfg.DisplayIndex, "error", cause)

	if err := e.initialize(); err != nil {
		return err
	}
	if err := e.ensureStaging(width, height); err != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientCapture, cause)
}

func (e *Engine) logPollDiag() {
	total := e.diagEmpty + e.diagFrames
	if total == 1 || total%diagLogEvery == 0 {
		e.log.Debug("capture poll diagnostic",
			"display", e.cfg.DisplayIndex,
			"empty", e.diagEmpty,
			"frames", e.diagFrames)
	}
}

// OutputBounds returns the dimensions of the duplicated display surface.
// Requested regions are validated against these bounds.
func (e *Engine) OutputBounds() (width, height uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputW, e.outputH
}

// Format returns the pixel format negotiated at the last session
// initialization.
func (e *Engine) Format() PixelFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// Close releases the session bundle and the staging texture. Safe to call
// multiple times; a capture issued after Close re-initializes the session
// lazily.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardown()
	return nil
}
