package dmic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/wav"
)

// Generator produces the PCM data the simulated microphone delivers.
type Generator interface {
	// Fill writes whole interleaved s16le frames into p and returns the
	// number of bytes written.
	Fill(p []byte, cfg domain.StreamConfig) (int, error)
}

// Silence delivers zero samples.
type Silence struct{}

// Fill implements Generator.
func (Silence) Fill(p []byte, cfg domain.StreamConfig) (int, error) {
	n := wholeFrames(len(p), cfg)
	clear(p[:n])
	return n, nil
}

// Tone is a sine wave at a fixed frequency, continuous across blocks.
type Tone struct {
	FrequencyHz float64
	Amplitude   int16

	phase float64
}

// Fill implements Generator.
func (t *Tone) Fill(p []byte, cfg domain.StreamConfig) (int, error) {
	n := wholeFrames(len(p), cfg)
	step := 2 * math.Pi * t.FrequencyHz / float64(cfg.SampleRateHz)
	frame := cfg.Channels * 2
	for off := 0; off < n; off += frame {
		s := int16(float64(t.Amplitude) * math.Sin(t.phase))
		for ch := 0; ch < cfg.Channels; ch++ {
			binary.LittleEndian.PutUint16(p[off+ch*2:], uint16(s))
		}
		t.phase += step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return n, nil
}

// Ramp delivers an incrementing sample counter, so ordering can be checked
// from the data alone.
type Ramp struct {
	next uint16
}

// Fill implements Generator.
func (r *Ramp) Fill(p []byte, cfg domain.StreamConfig) (int, error) {
	n := wholeFrames(len(p), cfg)
	for off := 0; off+2 <= n; off += 2 {
		binary.LittleEndian.PutUint16(p[off:], r.next)
		r.next++
	}
	return n, nil
}

// Replay delivers recorded s16le data, padding with silence once it runs
// out unless Loop is set.
type Replay struct {
	Data []byte
	Loop bool

	pos int
}

// Fill implements Generator.
func (r *Replay) Fill(p []byte, cfg domain.StreamConfig) (int, error) {
	n := wholeFrames(len(p), cfg)
	written := 0
	for written < n {
		if r.pos >= len(r.Data) {
			if !r.Loop || len(r.Data) == 0 {
				clear(p[written:n])
				break
			}
			r.pos = 0
		}
		c := copy(p[written:n], r.Data[r.pos:])
		written += c
		r.pos += c
	}
	return n, nil
}

// LoadReplay reads a WAV file or raw s16le file into a Replay generator.
// WAV input must be 16-bit integer PCM.
func LoadReplay(path string, loop bool) (*Replay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load replay: %w", err)
	}
	if !bytes.HasPrefix(raw, []byte("RIFF")) {
		return &Replay{Data: raw[:len(raw)&^1], Loop: loop}, nil
	}

	f, data, err := wav.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("load replay %s: %w", path, err)
	}
	if f.BitsPerSample != 16 {
		return nil, fmt.Errorf("load replay %s: %d-bit samples: %w", path, f.BitsPerSample, wav.ErrUnsupported)
	}
	return &Replay{Data: data, Loop: loop}, nil
}

// ParseGenerator builds a generator from a source description:
//
//	silence | ramp | tone[:<hz>[:<amplitude>]] | pcm:<path> | wav:<path>
//
// Replay sources loop when the description ends in ",loop".
func ParseGenerator(desc string) (Generator, error) {
	desc = strings.TrimSpace(desc)
	loop := strings.HasSuffix(desc, ",loop")
	desc = strings.TrimSuffix(desc, ",loop")

	kind, arg, _ := strings.Cut(desc, ":")
	switch kind {
	case "", "silence":
		return Silence{}, nil
	case "ramp":
		return &Ramp{}, nil
	case "tone":
		t := &Tone{FrequencyHz: 440, Amplitude: 8000}
		if arg == "" {
			return t, nil
		}
		hz, amp, hasAmp := strings.Cut(arg, ":")
		f, err := strconv.ParseFloat(hz, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("parse tone frequency %q: invalid", hz)
		}
		t.FrequencyHz = f
		if hasAmp {
			a, err := strconv.ParseInt(amp, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("parse tone amplitude %q: %w", amp, err)
			}
			t.Amplitude = int16(a)
		}
		return t, nil
	case "pcm", "wav":
		if arg == "" {
			return nil, fmt.Errorf("source %q requires a path", kind)
		}
		return LoadReplay(arg, loop)
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}

func wholeFrames(n int, cfg domain.StreamConfig) int {
	frame := cfg.Channels * cfg.BytesPerSample()
	if frame <= 0 {
		return 0
	}
	return n - n%frame
}
