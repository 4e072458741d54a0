// Package capture records a single utterance from a microphone.
//
// A Session acquires the microphone on Start, buffers raw PCM chunks on a
// reader goroutine and arms a countdown. The recording ends when the caller
// calls Stop or the countdown expires, whichever happens first; the other
// trigger becomes a no-op. Finalizing releases the device, concatenates the
// buffered chunks and frames them as a WAV Artifact.
//
// A Session records at most once. Create a new Session to record again.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/voicecollect/pkg/audio/wav"
	"github.com/haivivi/voicecollect/pkg/countdown"
)

// DefaultDuration is the countdown length, in seconds, of a recording.
const DefaultDuration = 3

// ErrFinished is returned by Start on a session that already recorded.
var ErrFinished = errors.New("capture: session finished")

// Microphone opens the audio input device.
type Microphone interface {
	// Open acquires the device. Implementations return an error when access
	// is denied or no input device is available.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open microphone.
type Stream interface {
	// Format describes the PCM data returned by ReadChunk.
	Format() wav.Format

	// ReadChunk blocks until the next chunk of little-endian PCM is
	// available. After Close it returns io.EOF once buffered data is drained.
	ReadChunk() ([]byte, error)

	// Close releases the device.
	Close() error
}

// PermissionError reports that the microphone could not be acquired.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("capture: microphone unavailable: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Artifact is a finalized recording.
type Artifact struct {
	// Data is the complete WAV file.
	Data []byte

	// MIMEType is always wav.MIMEType.
	MIMEType string

	// CreatedAt is the time the recording was finalized.
	CreatedAt time.Time

	// Duration is the playing time of the PCM payload.
	Duration time.Duration
}

// Ext returns the file extension for the artifact's container.
func (a *Artifact) Ext() string { return wav.Ext }

// Size returns the size of Data in bytes.
func (a *Artifact) Size() int { return len(a.Data) }

// Options configures a Session.
type Options struct {
	// Duration is the countdown length in seconds. Default is DefaultDuration.
	Duration int

	// TickInterval overrides the countdown interval. Default is one second.
	TickInterval time.Duration

	// OnStarted is called once the device is open, before the first tick.
	OnStarted func()

	// OnTick receives the remaining countdown seconds.
	OnTick func(remaining int)

	// OnFinalized is called once with the artifact when recording ends.
	OnFinalized func(*Artifact)

	// OnError is called when the device fails mid-recording. No artifact is
	// produced in that case.
	OnError func(error)

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type state int

const (
	stateIdle state = iota
	stateOpening
	stateRecording
	stateStopping
	stateFinalized
	stateCancelled
	stateFailed
)

// Session is one recording. It is safe for concurrent use.
type Session struct {
	mic   Microphone
	opts  Options
	log   *slog.Logger
	timer *countdown.Timer

	mu         sync.Mutex
	state      state
	stream     Stream
	format     wav.Format
	chunks     [][]byte
	readerDone chan struct{}
	artifact   *Artifact

	// stopPending is set by a Stop that arrives while the device is opening.
	stopPending bool

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an idle session on mic.
func New(mic Microphone, opts Options) *Session {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		mic:  mic,
		opts: opts,
		log:  opts.Logger,
		done: make(chan struct{}),
	}
	s.timer = countdown.New(countdown.Options{
		Interval: opts.TickInterval,
		OnTick:   opts.OnTick,
		OnExpire: func() {
			s.log.Debug("capture: countdown expired")
			s.Stop()
		},
	})
	return s
}

// Start acquires the microphone and begins recording. Calling Start while
// the session is opening or recording does nothing. If the device cannot be
// opened Start returns a *PermissionError and the session stays idle. If Stop
// was called while the device was opening, the recording is finalized as
// soon as the device is open.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateOpening, stateRecording, stateStopping:
		s.mu.Unlock()
		return nil
	case stateFinalized, stateCancelled, stateFailed:
		s.mu.Unlock()
		return ErrFinished
	}
	s.state = stateOpening
	s.mu.Unlock()

	stream, err := s.mic.Open(ctx)
	if err != nil {
		s.mu.Lock()
		if s.state == stateOpening {
			s.state = stateIdle
			s.stopPending = false
		}
		s.mu.Unlock()
		s.log.Warn("capture: microphone open failed", "error", err)
		return &PermissionError{Err: err}
	}

	s.mu.Lock()
	if s.state != stateOpening {
		// Cancelled while the device was being acquired.
		s.mu.Unlock()
		stream.Close()
		return nil
	}
	s.state = stateRecording
	s.stream = stream
	s.format = stream.Format()
	s.chunks = nil
	s.readerDone = make(chan struct{})
	readerDone := s.readerDone
	stopNow := s.stopPending
	s.stopPending = false
	s.mu.Unlock()

	go s.read(stream, readerDone)

	s.log.Info("capture: recording started", "format", s.format.String(), "seconds", s.opts.Duration)
	if s.opts.OnStarted != nil {
		s.opts.OnStarted()
	}
	if stopNow {
		s.log.Debug("capture: stop requested while opening")
		s.Stop()
		return nil
	}
	if err := s.timer.Arm(s.opts.Duration); err != nil {
		s.log.Error("capture: arm countdown", "error", err)
	}
	return nil
}

// Stop ends the recording and returns the artifact. The boolean is true
// only for the call that finalized; later calls return the existing artifact
// (nil if the session did not finalize) and false. A Stop while the device is
// opening returns (nil, false) and Start finalizes once the device is open.
func (s *Session) Stop() (*Artifact, bool) {
	s.mu.Lock()
	if s.state == stateOpening {
		s.stopPending = true
		s.mu.Unlock()
		return nil, false
	}
	if s.state != stateRecording {
		a := s.artifact
		s.mu.Unlock()
		return a, false
	}
	s.state = stateStopping
	stream := s.stream
	s.stream = nil
	readerDone := s.readerDone
	s.mu.Unlock()

	s.timer.Cancel()
	if err := stream.Close(); err != nil {
		s.log.Warn("capture: close stream", "error", err)
	}
	<-readerDone

	s.mu.Lock()
	var total int
	for _, c := range s.chunks {
		total += len(c)
	}
	pcm := bytes.Join(s.chunks, nil)
	s.chunks = nil
	data, err := wav.Encode(s.format, pcm)
	if err != nil {
		s.state = stateFailed
		s.mu.Unlock()
		s.closeDone()
		s.log.Error("capture: finalize", "error", err)
		if s.opts.OnError != nil {
			s.opts.OnError(err)
		}
		return nil, false
	}
	a := &Artifact{
		Data:      data,
		MIMEType:  wav.MIMEType,
		CreatedAt: s.opts.Now(),
		Duration:  s.format.Duration(total),
	}
	s.artifact = a
	s.state = stateFinalized
	s.mu.Unlock()
	s.closeDone()

	s.log.Info("capture: recording finalized", "bytes", a.Size(), "duration", a.Duration)
	if s.opts.OnFinalized != nil {
		s.opts.OnFinalized(a)
	}
	return a, true
}

// Cancel discards the recording without finalizing and releases the device.
// It is safe to call in any state.
func (s *Session) Cancel() {
	s.mu.Lock()
	switch s.state {
	case stateFinalized, stateCancelled, stateFailed, stateStopping:
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = stateCancelled
	stream := s.stream
	s.stream = nil
	readerDone := s.readerDone
	s.mu.Unlock()

	s.timer.Cancel()
	if prev == stateRecording && stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Warn("capture: close stream", "error", err)
		}
		<-readerDone
	}

	s.mu.Lock()
	s.chunks = nil
	s.mu.Unlock()
	s.closeDone()
	s.log.Debug("capture: recording cancelled")
}

// Done is closed once the session is finalized, cancelled or failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Recording reports whether the device is being acquired or is recording.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpening || s.state == stateRecording || s.state == stateStopping
}

// Artifact returns the finalized artifact, or nil.
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

func (s *Session) read(stream Stream, done chan struct{}) {
	defer close(done)
	for {
		chunk, err := stream.ReadChunk()
		if len(chunk) > 0 {
			s.mu.Lock()
			if s.state == stateRecording || s.state == stateStopping {
				s.chunks = append(s.chunks, chunk)
			}
			s.mu.Unlock()
		}
		if err != nil {
			s.readFailed(err)
			return
		}
	}
}

// readFailed handles a read error. Errors after Stop or Cancel are the
// expected end of stream.
func (s *Session) readFailed(err error) {
	s.mu.Lock()
	if s.state != stateRecording {
		s.mu.Unlock()
		return
	}
	s.state = stateFailed
	stream := s.stream
	s.stream = nil
	s.chunks = nil
	s.mu.Unlock()

	s.timer.Cancel()
	if stream != nil {
		stream.Close()
	}
	s.closeDone()
	s.log.Error("capture: device read failed", "error", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}
