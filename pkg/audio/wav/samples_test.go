package wav

import (
	"testing"
	"time"
)

func TestSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	b := AppendSamples(nil, in)
	if len(b) != len(in)*2 {
		t.Fatalf("len = %d", len(b))
	}
	if b[2] != 0x01 || b[3] != 0x00 || b[4] != 0xff || b[5] != 0xff {
		t.Fatalf("not little-endian: % x", b[:6])
	}

	out := make([]int16, len(in))
	if n := Samples(out, b); n != len(in) {
		t.Fatalf("Samples = %d", n)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestSamplesShortInput(t *testing.T) {
	dst := make([]int16, 4)
	if n := Samples(dst, []byte{1, 0, 2}); n != 1 || dst[0] != 1 {
		t.Fatalf("n = %d, dst = %v", n, dst)
	}
	if n := Samples(dst[:1], []byte{1, 0, 2, 0}); n != 1 {
		t.Fatalf("n = %d with short dst", n)
	}
}

func TestFramesIn(t *testing.T) {
	if got := L16Mono16K.FramesIn(20 * time.Millisecond); got != 320 {
		t.Fatalf("FramesIn(20ms) = %d, want 320", got)
	}
}
