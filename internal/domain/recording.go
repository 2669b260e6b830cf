package domain

import "encoding/binary"

// Recording is the read-back payload of a successful session.
type Recording struct {
	Format     StreamConfig
	Iterations int
	Data       []byte
	CRC32      uint32
}

// SampleCount returns the number of 16-bit samples in the recording.
func (r Recording) SampleCount() int {
	return len(r.Data) / 2
}

// Sample returns the i-th signed 16-bit little-endian sample.
func (r Recording) Sample(i int) int16 {
	return int16(binary.LittleEndian.Uint16(r.Data[i*2:]))
}

// Samples decodes the whole recording.
func (r Recording) Samples() []int16 {
	out := make([]int16, r.SampleCount())
	for i := range out {
		out[i] = r.Sample(i)
	}
	return out
}
