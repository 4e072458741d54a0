package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/haivivi/voicecollect/pkg/audio/wav"
	"github.com/haivivi/voicecollect/pkg/playback"
)

// Speaker plays 16-bit PCM WAV on the default output device.
type Speaker struct {
	// FrameDuration is the length of each device write. Default is
	// DefaultFrameDuration.
	FrameDuration time.Duration
}

// Play decodes the WAV stream r and writes it to the device until it ends
// or ctx is cancelled.
func (s *Speaker) Play(ctx context.Context, r io.Reader) error {
	format, pcm, err := wav.Decode(r)
	if err != nil {
		return err
	}
	if format.BitsPerSample != 16 {
		return fmt.Errorf("portaudio: unsupported sample size %d", format.BitsPerSample)
	}
	if err := acquire(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer release()

	frames := format.FramesIn(frameDuration(s.FrameDuration))
	buf := make([]int16, frames*format.Channels)
	st, err := pa.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), frames, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output: %w", err)
	}
	defer st.Close()
	if err := st.Start(); err != nil {
		return fmt.Errorf("portaudio: start output: %w", err)
	}
	defer st.Stop()

	raw := make([]byte, len(buf)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := io.ReadFull(pcm, raw)
		if n == 0 {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
		got := wav.Samples(buf, raw[:n])
		clear(buf[got:])
		if err := st.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			return err
		}
		if rerr == io.ErrUnexpectedEOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

var _ playback.Device = (*Speaker)(nil)
