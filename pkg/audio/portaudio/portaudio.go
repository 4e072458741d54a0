// Package portaudio connects the default host audio devices to the capture
// and playback packages through PortAudio's blocking I/O.
//
// Requires the PortAudio C library (brew install portaudio, apt install
// portaudio19-dev).
package portaudio

import (
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"
)

// DefaultFrameDuration is the length of one device buffer.
const DefaultFrameDuration = 20 * time.Millisecond

var (
	initMu sync.Mutex
	refs   int
)

// acquire initializes PortAudio on first use. Every successful acquire must
// be paired with release.
func acquire() error {
	initMu.Lock()
	defer initMu.Unlock()
	if refs == 0 {
		if err := pa.Initialize(); err != nil {
			return err
		}
	}
	refs++
	return nil
}

func release() {
	initMu.Lock()
	defer initMu.Unlock()
	refs--
	if refs == 0 {
		pa.Terminate()
	}
}

func frameDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultFrameDuration
	}
	return d
}
