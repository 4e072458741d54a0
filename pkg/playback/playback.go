// Package playback plays one audio source at a time on an output device.
//
// The Controller is shared by the reference-sample player and the recording
// review player: starting a new playback stops the active one, so the two can
// never overlap.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ErrStopped is reported by a Handle whose playback was stopped or
// superseded before it ended.
var ErrStopped = errors.New("playback: stopped")

// Error is a playback failure such as a missing or corrupt source.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("playback: %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Source is something that can be played.
type Source interface {
	// Name identifies the source in errors and logs.
	Name() string

	// Open returns the encoded audio. The caller closes it.
	Open() (io.ReadCloser, error)
}

// Device renders encoded audio.
type Device interface {
	// Play blocks until r is fully played, ctx is cancelled, or an error
	// occurs. It returns ctx.Err() when cancelled.
	Play(ctx context.Context, r io.Reader) error
}

// Bytes is an in-memory Source.
type Bytes struct {
	Label string
	Data  []byte
}

func (b Bytes) Name() string { return b.Label }

func (b Bytes) Open() (io.ReadCloser, error) {
	if len(b.Data) == 0 {
		return nil, errors.New("empty audio")
	}
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// File is a Source read from disk.
type File string

func (f File) Name() string { return string(f) }

func (f File) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// Handle tracks one playback.
type Handle struct {
	source string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Source returns the name of the source being played.
func (h *Handle) Source() string { return h.source }

// Done is closed when playback ends, fails or is stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until playback finishes. It returns nil when the source played
// to the end, ErrStopped if it was stopped, or an *Error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Stop stops this playback and waits for the device to release.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Controller serialises playback on one Device.
type Controller struct {
	dev Device
	log *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// NewController creates a controller. A nil logger uses slog.Default().
func NewController(dev Device, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{dev: dev, log: logger}
}

// Play stops any active playback and starts src. Errors are reported through
// the returned Handle.
func (c *Controller) Play(ctx context.Context, src Source) *Handle {
	c.mu.Lock()
	prev := c.active
	pctx, cancel := context.WithCancel(ctx)
	h := &Handle{source: src.Name(), cancel: cancel, done: make(chan struct{})}
	c.active = h
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	go c.run(pctx, h, src)
	return h
}

// Stop stops the active playback, if any.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.active
	c.active = nil
	c.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// Playing reports whether a playback is in progress.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (c *Controller) run(ctx context.Context, h *Handle, src Source) {
	defer func() {
		h.cancel()
		close(h.done)
		c.mu.Lock()
		if c.active == h {
			c.active = nil
		}
		c.mu.Unlock()
	}()

	rc, err := src.Open()
	if err != nil {
		h.err = &Error{Source: h.source, Err: err}
		c.log.Warn("playback: open source", "source", h.source, "error", err)
		return
	}
	defer rc.Close()

	err = c.dev.Play(ctx, rc)
	switch {
	case err == nil:
		c.log.Debug("playback: ended", "source", h.source)
	case ctx.Err() != nil:
		h.err = ErrStopped
	default:
		h.err = &Error{Source: h.source, Err: err}
		c.log.Warn("playback: failed", "source", h.source, "error", err)
	}
}
