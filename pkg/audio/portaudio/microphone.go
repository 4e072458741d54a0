package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/haivivi/voicecollect/pkg/audio/wav"
	"github.com/haivivi/voicecollect/pkg/capture"
)

// Microphone records from the default input device.
type Microphone struct {
	// Format must be 16-bit PCM. Default is wav.L16Mono16K.
	Format wav.Format

	// FrameDuration is the length of each chunk. Default is
	// DefaultFrameDuration.
	FrameDuration time.Duration
}

// Open acquires the default input device and starts capturing.
func (m *Microphone) Open(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format := m.Format
	if format == (wav.Format{}) {
		format = wav.L16Mono16K
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("portaudio: unsupported sample size %d", format.BitsPerSample)
	}
	if err := acquire(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	frames := format.FramesIn(frameDuration(m.FrameDuration))
	buf := make([]int16, frames*format.Channels)
	st, err := pa.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), frames, buf)
	if err != nil {
		release()
		return nil, fmt.Errorf("portaudio: open input: %w", err)
	}
	if err := st.Start(); err != nil {
		st.Close()
		release()
		return nil, fmt.Errorf("portaudio: start input: %w", err)
	}
	return &inputStream{st: st, buf: buf, format: format}, nil
}

type inputStream struct {
	format wav.Format

	mu     sync.Mutex
	st     *pa.Stream
	buf    []int16
	closed bool
}

func (s *inputStream) Format() wav.Format { return s.format }

// ReadChunk blocks for one device buffer. Input overflows drop audio on the
// device side and are not reported.
func (s *inputStream) ReadChunk() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.EOF
	}
	if err := s.st.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		return nil, err
	}
	return wav.AppendSamples(make([]byte, 0, len(s.buf)*2), s.buf), nil
}

// Close stops the stream and releases the device. A pending ReadChunk
// finishes its buffer first.
func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer release()
	if err := s.st.Stop(); err != nil {
		s.st.Close()
		return err
	}
	return s.st.Close()
}

var _ capture.Microphone = (*Microphone)(nil)
