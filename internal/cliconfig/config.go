package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
)

// Defaults for the emulated board.
const (
	DefaultSource      = "tone"
	DefaultToneHz      = 440.0
	DefaultAmplitude   = 8000
	DefaultFlashSize   = 16 << 20
	DefaultEraseUnit   = 2 << 20
	DefaultWriteBlock  = 4
	DefaultLogLevel    = "info"
	DefaultMetricsAddr = ":9464"
)

// Config holds CLI configuration for hwv.
type Config struct {
	SampleRateHz  int
	BitsPerSample int
	Channels      int
	BlockInterval time.Duration
	BlockCount    int

	ReadTimeout    time.Duration
	AcquireTimeout time.Duration
	ReadChunk      int

	FlashImage string
	FlashSize  int64
	EraseUnit  int64
	WriteBlock int64

	Source    string
	ToneHz    float64
	Amplitude int

	Verify      bool
	LogLevel    string
	MetricsAddr string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SampleRateHz:   domain.DefaultSampleRateHz,
		BitsPerSample:  domain.DefaultBitsPerSample,
		Channels:       domain.DefaultChannels,
		BlockInterval:  domain.DefaultBlockInterval,
		BlockCount:     domain.DefaultBlockCount,
		ReadTimeout:    domain.DefaultReadTimeout,
		AcquireTimeout: domain.DefaultReadTimeout,
		ReadChunk:      2,
		FlashSize:      DefaultFlashSize,
		EraseUnit:      DefaultEraseUnit,
		WriteBlock:     DefaultWriteBlock,
		Source:         DefaultSource,
		ToneHz:         DefaultToneHz,
		Amplitude:      DefaultAmplitude,
		LogLevel:       DefaultLogLevel,
		MetricsAddr:    DefaultMetricsAddr,
	}
}

// StreamConfig returns the microphone stream described by c.
func (c Config) StreamConfig() domain.StreamConfig {
	s := domain.DefaultStreamConfig()
	s.SampleRateHz = c.SampleRateHz
	s.BitsPerSample = c.BitsPerSample
	s.Channels = c.Channels
	s.BlockInterval = c.BlockInterval
	s.ChannelMap = 0
	for ch := 0; ch < c.Channels; ch++ {
		side := domain.PDMLeft
		if ch%2 == 1 {
			side = domain.PDMRight
		}
		s.ChannelMap |= domain.BuildChannelMap(ch, 0, side)
	}
	return s
}

// Geometry returns the flash geometry described by c.
func (c Config) Geometry() ports.Geometry {
	return ports.Geometry{TotalSize: c.FlashSize, EraseUnit: c.EraseUnit, WriteBlock: c.WriteBlock}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.StreamConfig().Validate(); err != nil {
		return err
	}
	if c.BlockCount <= 0 {
		return fmt.Errorf("block count must be positive")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire timeout must be positive")
	}
	if c.ReadChunk <= 0 || c.ReadChunk%2 != 0 {
		return fmt.Errorf("read chunk must be a positive whole number of samples")
	}

	if c.WriteBlock <= 0 || c.EraseUnit <= 0 || c.FlashSize <= 0 {
		return fmt.Errorf("flash geometry must be positive")
	}
	if c.EraseUnit%c.WriteBlock != 0 || c.FlashSize%c.EraseUnit != 0 {
		return fmt.Errorf("flash size %d, erase unit %d and write block %d are not aligned",
			c.FlashSize, c.EraseUnit, c.WriteBlock)
	}

	if c.Source == "" {
		c.Source = DefaultSource
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if valid.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 0, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
