// Package wav frames raw little-endian PCM audio in a RIFF/WAVE container and
// reads it back.
//
// Only the canonical 44-byte header layout (a single "fmt " chunk followed by
// a "data" chunk) is produced. Decode additionally skips unknown chunks such
// as "LIST" so sample assets exported by common editors can be played.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// MIMEType is the content type of framed audio.
const MIMEType = "audio/wav"

// Ext is the file extension (without dot) of framed audio.
const Ext = "wav"

// HeaderSize is the size of the canonical header written by Encode.
const HeaderSize = 44

// ErrInvalid is returned for data that is not a PCM WAV stream.
var ErrInvalid = errors.New("wav: invalid stream")

// Format describes interleaved PCM samples.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// L16Mono16K is 16-bit mono PCM at 16 kHz, the capture default.
var L16Mono16K = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// BlockAlign returns the number of bytes in one frame.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the number of bytes per second.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Duration returns the playing time of n bytes of PCM data.
func (f Format) Duration(n int) time.Duration {
	rate := f.ByteRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Validate reports whether f can be framed.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("wav: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("wav: channels must be positive, got %d", f.Channels)
	}
	if f.BitsPerSample != 8 && f.BitsPerSample != 16 && f.BitsPerSample != 24 && f.BitsPerSample != 32 {
		return fmt.Errorf("wav: unsupported bit depth %d", f.BitsPerSample)
	}
	return nil
}

// String returns the format in MIME parameter style.
func (f Format) String() string {
	return fmt.Sprintf("audio/L%d; rate=%d; channels=%d", f.BitsPerSample, f.SampleRate, f.Channels)
}

type header struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// Encode returns pcm framed with a canonical WAV header.
func Encode(f Format, pcm []byte) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	h := header{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitsPerSample),
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("wav: write header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// Decode reads a WAV stream and returns its format and a reader positioned at
// the start of the PCM data, limited to the declared data size.
func Decode(r io.Reader) (Format, io.Reader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, nil, fmt.Errorf("%w: missing RIFF/WAVE tag", ErrInvalid)
	}

	var (
		f      Format
		hasFmt bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return Format{}, nil, fmt.Errorf("%w: missing data chunk", ErrInvalid)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, fmt.Errorf("%w: short fmt chunk", ErrInvalid)
			}
			var raw [16]byte
			if _, err := io.ReadFull(r, raw[:]); err != nil {
				return Format{}, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			if tag := binary.LittleEndian.Uint16(raw[0:2]); tag != 1 {
				return Format{}, nil, fmt.Errorf("%w: unsupported audio format %d", ErrInvalid, tag)
			}
			f = Format{
				Channels:      int(binary.LittleEndian.Uint16(raw[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(raw[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(raw[14:16])),
			}
			if err := skip(r, size-16+size%2); err != nil {
				return Format{}, nil, err
			}
			hasFmt = true
		case "data":
			if !hasFmt {
				return Format{}, nil, fmt.Errorf("%w: data before fmt", ErrInvalid)
			}
			if err := f.Validate(); err != nil {
				return Format{}, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			return f, io.LimitReader(r, size), nil
		default:
			if err := skip(r, size+size%2); err != nil {
				return Format{}, nil, err
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("%w: truncated chunk: %v", ErrInvalid, err)
	}
	return nil
}
