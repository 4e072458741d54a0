package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/voicecollect/pkg/audio/wav"
)

// fakeMic hands out fakeStreams and counts device acquisitions.
type fakeMic struct {
	openErr error
	chunk   []byte
	gate    chan struct{} // if non-nil, Open blocks until closed

	opens   atomic.Int32
	mu      sync.Mutex
	streams []*fakeStream
}

func (m *fakeMic) Open(ctx context.Context) (Stream, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opens.Add(1)
	st := &fakeStream{chunk: m.chunk, closed: make(chan struct{})}
	m.mu.Lock()
	m.streams = append(m.streams, st)
	m.mu.Unlock()
	return st, nil
}

func (m *fakeMic) closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, st := range m.streams {
		n += int(st.closes.Load())
	}
	return n
}

// fakeStream yields chunk every millisecond until closed.
type fakeStream struct {
	chunk   []byte
	readErr error

	closes    atomic.Int32
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *fakeStream) Format() wav.Format { return wav.L16Mono16K }

func (s *fakeStream) ReadChunk() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	case <-time.After(time.Millisecond):
	}
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]byte(nil), s.chunk...), nil
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestStopFinalizesArtifact(t *testing.T) {
	mic := &fakeMic{chunk: []byte{1, 2, 3, 4}}
	var finalized atomic.Int32
	s := New(mic, Options{
		Duration:    100,
		OnFinalized: func(*Artifact) { finalized.Add(1) },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	a, ok := s.Stop()
	if !ok || a == nil {
		t.Fatalf("Stop = %v, %v", a, ok)
	}
	if a.MIMEType != wav.MIMEType {
		t.Fatalf("MIMEType = %q", a.MIMEType)
	}
	if a.Size() <= wav.HeaderSize {
		t.Fatalf("artifact has no audio: %d bytes", a.Size())
	}
	f, r, err := wav.Decode(bytes.NewReader(a.Data))
	if err != nil {
		t.Fatal(err)
	}
	pcm, _ := io.ReadAll(r)
	if f != wav.L16Mono16K || len(pcm)%4 != 0 {
		t.Fatalf("format = %+v, pcm = %d bytes", f, len(pcm))
	}
	if mic.closes() != 1 {
		t.Fatalf("stream closed %d times, want 1", mic.closes())
	}
	if finalized.Load() != 1 {
		t.Fatalf("OnFinalized called %d times", finalized.Load())
	}
	waitDone(t, s)
}

func TestStartIsIdempotent(t *testing.T) {
	mic := &fakeMic{chunk: []byte{0, 0}}
	s := New(mic, Options{Duration: 100})
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if n := mic.opens.Load(); n != 1 {
		t.Fatalf("microphone opened %d times, want 1", n)
	}
	if !s.Recording() {
		t.Fatal("not recording")
	}
	s.Stop()
	if err := s.Start(ctx); !errors.Is(err, ErrFinished) {
		t.Fatalf("Start after Stop err = %v, want ErrFinished", err)
	}
}

func TestConcurrentStartOpensOnce(t *testing.T) {
	mic := &fakeMic{chunk: []byte{0, 0}, gate: make(chan struct{})}
	s := New(mic, Options{Duration: 100})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(mic.gate)
	wg.Wait()

	if n := mic.opens.Load(); n != 1 {
		t.Fatalf("microphone opened %d times, want 1", n)
	}
	s.Stop()
}

func TestPermissionDenied(t *testing.T) {
	denied := errors.New("permission denied")
	mic := &fakeMic{openErr: denied}
	s := New(mic, Options{})

	err := s.Start(context.Background())
	var perr *PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PermissionError", err)
	}
	if !errors.Is(err, denied) {
		t.Fatalf("err does not wrap cause: %v", err)
	}
	if s.Recording() {
		t.Fatal("recording after denied start")
	}
	if a, ok := s.Stop(); a != nil || ok {
		t.Fatalf("Stop after denied start = %v, %v", a, ok)
	}

	// Permission granted on retry.
	mic.openErr = nil
	mic.chunk = []byte{1, 1}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	s.Stop()
}

func TestExpiryFinalizesOnce(t *testing.T) {
	mic := &fakeMic{chunk: []byte{5, 5}}
	var finalized atomic.Int32
	var ticks atomic.Int32
	s := New(mic, Options{
		Duration:     3,
		TickInterval: 5 * time.Millisecond,
		OnTick:       func(int) { ticks.Add(1) },
		OnFinalized:  func(*Artifact) { finalized.Add(1) },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, s)

	// A manual stop after expiry is a no-op.
	a, ok := s.Stop()
	if ok {
		t.Fatal("Stop after expiry reported finalize")
	}
	if a == nil || a != s.Artifact() {
		t.Fatal("Stop after expiry did not return the artifact")
	}
	if finalized.Load() != 1 {
		t.Fatalf("OnFinalized called %d times, want 1", finalized.Load())
	}
	if ticks.Load() != 2 {
		t.Fatalf("ticks = %d, want 2", ticks.Load())
	}
	if mic.closes() != 1 {
		t.Fatalf("stream closed %d times, want 1", mic.closes())
	}
}

func TestStopExpiryRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		mic := &fakeMic{chunk: []byte{1, 0}}
		var finalized atomic.Int32
		s := New(mic, Options{
			Duration:     1,
			TickInterval: time.Millisecond,
			OnFinalized:  func(*Artifact) { finalized.Add(1) },
		})
		if err := s.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
		s.Stop()
		waitDone(t, s)
		time.Sleep(5 * time.Millisecond)

		if n := finalized.Load(); n != 1 {
			t.Fatalf("iteration %d: finalized %d times", i, n)
		}
		if n := mic.closes(); n != 1 {
			t.Fatalf("iteration %d: stream closed %d times", i, n)
		}
	}
}

func TestCancelReleasesDevice(t *testing.T) {
	mic := &fakeMic{chunk: []byte{1, 2}}
	var finalized atomic.Int32
	s := New(mic, Options{
		Duration:    100,
		OnFinalized: func(*Artifact) { finalized.Add(1) },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.Cancel()
	waitDone(t, s)
	if mic.closes() != 1 {
		t.Fatalf("stream closed %d times, want 1", mic.closes())
	}
	if s.Artifact() != nil || finalized.Load() != 0 {
		t.Fatal("cancelled session produced an artifact")
	}
	s.Cancel()
	if mic.closes() != 1 {
		t.Fatal("second Cancel closed the stream again")
	}
}

func TestCancelWhileOpening(t *testing.T) {
	mic := &fakeMic{chunk: []byte{1, 2}, gate: make(chan struct{})}
	s := New(mic, Options{Duration: 100})

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	s.Cancel()
	close(mic.gate)

	if err := <-started; err != nil {
		t.Fatal(err)
	}
	if mic.opens.Load() != 1 || mic.closes() != 1 {
		t.Fatalf("opens=%d closes=%d, want 1/1", mic.opens.Load(), mic.closes())
	}
	if s.Recording() {
		t.Fatal("recording after cancel")
	}
}

func TestStopWhileOpeningFinalizesOnOpen(t *testing.T) {
	mic := &fakeMic{chunk: []byte{1, 2}, gate: make(chan struct{})}
	var started, finalized atomic.Int32
	s := New(mic, Options{
		Duration:    100,
		OnStarted:   func() { started.Add(1) },
		OnFinalized: func(*Artifact) { finalized.Add(1) },
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	if a, ok := s.Stop(); a != nil || ok {
		t.Fatalf("Stop while opening = %v, %v", a, ok)
	}
	close(mic.gate)

	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("not finalized after the device opened")
	}
	if s.Artifact() == nil || finalized.Load() != 1 {
		t.Fatalf("artifact=%v finalized=%d", s.Artifact(), finalized.Load())
	}
	if started.Load() != 1 {
		t.Fatalf("started = %d, want 1", started.Load())
	}
	if s.Recording() || mic.closes() != 1 {
		t.Fatalf("recording=%v closes=%d", s.Recording(), mic.closes())
	}
}

func TestStopWhileOpeningDeniedIsForgotten(t *testing.T) {
	mic := &fakeMic{openErr: errors.New("denied"), gate: make(chan struct{})}
	s := New(mic, Options{Duration: 100})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	close(mic.gate)
	var perr *PermissionError
	if err := <-errCh; !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PermissionError", err)
	}

	mic.openErr, mic.gate = nil, nil
	mic.chunk = []byte{1, 1}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.Recording() || s.Artifact() != nil {
		t.Fatal("earlier Stop applied to the retried start")
	}
	if _, ok := s.Stop(); !ok {
		t.Fatal("Stop did not finalize")
	}
}

func TestReadErrorReportsAndReleases(t *testing.T) {
	mic := &failingMic{err: errors.New("device unplugged")}
	errCh := make(chan error, 1)
	s := New(mic, Options{
		Duration: 100,
		OnError:  func(err error) { errCh <- err },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if err.Error() != "device unplugged" {
			t.Fatalf("OnError = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError not called")
	}
	waitDone(t, s)
	if mic.stream.closes.Load() != 1 {
		t.Fatalf("stream closed %d times", mic.stream.closes.Load())
	}
	if a, ok := s.Stop(); a != nil || ok {
		t.Fatal("failed session finalized")
	}
}

type failingMic struct {
	err    error
	stream *fakeStream
}

func (m *failingMic) Open(context.Context) (Stream, error) {
	m.stream = &fakeStream{readErr: m.err, closed: make(chan struct{})}
	return m.stream, nil
}
