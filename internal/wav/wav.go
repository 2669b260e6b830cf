// Package wav reads and writes canonical PCM WAV files.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PCMFormat is the WAVE format tag for integer PCM.
const PCMFormat = 1

// HeaderSize is the size of the canonical RIFF/fmt/data header.
const HeaderSize = 44

var (
	// ErrNotWAV is returned when the input has no RIFF/WAVE signature.
	ErrNotWAV = errors.New("wav: not a RIFF/WAVE stream")

	// ErrUnsupported is returned for non-PCM encodings.
	ErrUnsupported = errors.New("wav: unsupported encoding")
)

// Format describes the PCM layout of a WAV file.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BlockAlign returns the size of one frame in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the number of bytes per second of audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Encode writes pcm as a canonical WAV stream.
func Encode(w io.Writer, f Format, pcm []byte) error {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("wav: invalid format %+v", f)
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(PCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(f.ByteRate()))
	binary.Write(&buf, binary.LittleEndian, uint16(f.BlockAlign()))
	binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	return nil
}

// Decode reads a PCM WAV stream and returns its format and sample data.
// Chunks other than "fmt " and "data" are skipped.
func Decode(r io.Reader) (Format, []byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, nil, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	var f Format
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Format{}, nil, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != PCMFormat {
				return Format{}, nil, fmt.Errorf("%w: format tag %d", ErrUnsupported, tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
			if size%2 == 1 {
				io.CopyN(io.Discard, r, 1)
			}
		case "data":
			if !haveFmt {
				return Format{}, nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return Format{}, nil, fmt.Errorf("wav: read data chunk: %w", err)
			}
			// Streaming writers leave the size unset; keep what is there.
			return f, data[:n], nil
		default:
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return Format{}, nil, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
	}
}
