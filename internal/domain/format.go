package domain

import (
	"fmt"
	"time"
)

// Reference stream parameters of the board microphone.
const (
	DefaultSampleRateHz  = 16000
	DefaultBitsPerSample = 16
	DefaultChannels      = 1
	DefaultBlockInterval = 200 * time.Millisecond
	DefaultBlockCount    = 4
	DefaultReadTimeout   = 1000 * time.Millisecond
)

// PDMSide selects the PDM clock edge a channel is sampled on.
type PDMSide uint8

const (
	PDMLeft PDMSide = iota
	PDMRight
)

// ChannelMap packs per-channel PDM controller and side selections, four bits
// per logical channel.
type ChannelMap uint32

// BuildChannelMap returns the map entry placing logical channel on the given
// PDM controller and clock edge.
func BuildChannelMap(channel, pdm int, side PDMSide) ChannelMap {
	entry := uint32(pdm<<1) | uint32(side&1)
	return ChannelMap(entry << (uint(channel) * 4))
}

// Lookup returns the PDM controller and side for a logical channel.
func (m ChannelMap) Lookup(channel int) (pdm int, side PDMSide) {
	entry := (uint32(m) >> (uint(channel) * 4)) & 0xf
	return int(entry >> 1), PDMSide(entry & 1)
}

// PDMIO holds the clock constraints of the PDM interface.
type PDMIO struct {
	MinClockHz     uint32
	MaxClockHz     uint32
	MinDutyPercent uint8
	MaxDutyPercent uint8
}

// DefaultPDMIO returns the clock window supported by the board microphone.
func DefaultPDMIO() PDMIO {
	return PDMIO{
		MinClockHz:     1000000,
		MaxClockHz:     3500000,
		MinDutyPercent: 40,
		MaxDutyPercent: 60,
	}
}

// StreamConfig describes the PCM stream requested from the microphone.
type StreamConfig struct {
	SampleRateHz  int
	BitsPerSample int
	Channels      int
	ChannelMap    ChannelMap
	BlockInterval time.Duration
	IO            PDMIO
}

// DefaultStreamConfig returns 16 kHz, 16-bit mono in 200 ms blocks on the
// left edge of PDM controller 0.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRateHz:  DefaultSampleRateHz,
		BitsPerSample: DefaultBitsPerSample,
		Channels:      DefaultChannels,
		ChannelMap:    BuildChannelMap(0, 0, PDMLeft),
		BlockInterval: DefaultBlockInterval,
		IO:            DefaultPDMIO(),
	}
}

// Validate checks the fields needed to derive block geometry.
func (c StreamConfig) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrConfiguration)
	}
	if c.BitsPerSample <= 0 || c.BitsPerSample%8 != 0 {
		return fmt.Errorf("%w: bits per sample must be a positive multiple of 8", ErrConfiguration)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive", ErrConfiguration)
	}
	ms := c.BlockInterval.Milliseconds()
	if ms <= 0 || 1000%ms != 0 {
		return fmt.Errorf("%w: block interval %s must divide one second", ErrConfiguration, c.BlockInterval)
	}
	if (int64(c.SampleRateHz)*ms)%1000 != 0 {
		return fmt.Errorf("%w: block interval %s does not hold a whole number of frames", ErrConfiguration, c.BlockInterval)
	}
	return nil
}

// BytesPerSample returns the width of a single sample in bytes.
func (c StreamConfig) BytesPerSample() int {
	return c.BitsPerSample / 8
}

// FramesPerBlock returns the number of sample frames in one block.
func (c StreamConfig) FramesPerBlock() int {
	return int(int64(c.SampleRateHz) * c.BlockInterval.Milliseconds() / 1000)
}

// BlockSize returns the size in bytes of one interval of captured audio.
func (c StreamConfig) BlockSize() int {
	return c.BytesPerSample() * c.Channels * c.FramesPerBlock()
}

// BlocksPerSecond returns how many blocks one second of audio spans.
func (c StreamConfig) BlocksPerSecond() int {
	return int(1000 / c.BlockInterval.Milliseconds())
}

// Iterations converts a capture duration in whole seconds into a block count.
// A non-positive duration selects the one second default.
func (c StreamConfig) Iterations(seconds int) int {
	if seconds <= 0 {
		seconds = 1
	}
	return seconds * c.BlocksPerSecond()
}
