package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

func TestEncodeHeader(t *testing.T) {
	pcm := make([]byte, 3200)
	data, err := Encode(L16Mono16K, pcm)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != HeaderSize+len(pcm) {
		t.Fatalf("len = %d, want %d", len(data), HeaderSize+len(pcm))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Fatalf("bad tags: %q", data[:40])
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d", got)
	}
}

func TestEncodeInvalidFormat(t *testing.T) {
	if _, err := Encode(Format{SampleRate: 0, Channels: 1, BitsPerSample: 16}, nil); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := Encode(Format{SampleRate: 8000, Channels: 1, BitsPerSample: 12}, nil); err == nil {
		t.Fatal("expected error for 12-bit depth")
	}
}

func TestDecode(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	data, err := Encode(L16Mono16K, pcm)
	if err != nil {
		t.Fatal(err)
	}

	f, r, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if f != L16Mono16K {
		t.Fatalf("format = %+v", f)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	pcm := []byte{9, 8, 7, 6}
	data, err := Encode(L16Mono16K, pcm)
	if err != nil {
		t.Fatal(err)
	}

	// Insert an odd-sized LIST chunk between fmt and data.
	var list bytes.Buffer
	list.WriteString("LIST")
	binary.Write(&list, binary.LittleEndian, uint32(3))
	list.Write([]byte{'a', 'b', 'c', 0})

	var patched bytes.Buffer
	patched.Write(data[:36])
	patched.Write(list.Bytes())
	patched.Write(data[36:])

	_, r, err := Decode(&patched)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVEfmt ")},
		{"no data chunk", []byte("RIFF\x04\x00\x00\x00WAVE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	if got := L16Mono16K.Duration(32000); got != time.Second {
		t.Fatalf("Duration(32000) = %v, want 1s", got)
	}
	if got := (Format{}).Duration(100); got != 0 {
		t.Fatalf("zero format duration = %v", got)
	}
}
