package report

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bft-labs/hwv/internal/wav"
)

// DumpFormat is the audio format of a shell capture dump.
var DumpFormat = wav.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// WriteWAV encodes samples as a WAV stream in format f.
func WriteWAV(w io.Writer, f wav.Format, samples []int16) error {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return wav.Encode(w, f, pcm)
}

// ConvertDump reads a framed dump from r and writes it to w as a WAV stream.
// It returns the number of samples converted.
func ConvertDump(r io.Reader, w io.Writer, f wav.Format) (int, error) {
	samples, err := ParseDump(r)
	if err != nil {
		return 0, err
	}
	if err := WriteWAV(w, f, samples); err != nil {
		return 0, fmt.Errorf("report: %w", err)
	}
	return len(samples), nil
}
