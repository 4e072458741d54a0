package wav

import (
	"encoding/binary"
	"time"
)

// AppendSamples appends s to dst as little-endian 16-bit PCM.
func AppendSamples(dst []byte, s []int16) []byte {
	for _, v := range s {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}

// Samples decodes little-endian 16-bit PCM from b into dst and returns the
// number of samples written. A trailing odd byte is ignored.
func Samples(dst []int16, b []byte) int {
	n := min(len(dst), len(b)/2)
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return n
}

// FramesIn returns the number of frames covering d at f's sample rate.
func (f Format) FramesIn(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}
