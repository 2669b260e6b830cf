package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	SampleRateHz   int     `toml:"sample_rate_hz"`
	BitsPerSample  int     `toml:"bits_per_sample"`
	Channels       int     `toml:"channels"`
	BlockInterval  string  `toml:"block_interval"`
	BlockCount     int     `toml:"block_count"`
	ReadTimeout    string  `toml:"read_timeout"`
	AcquireTimeout string  `toml:"acquire_timeout"`
	ReadChunk      int     `toml:"read_chunk"`
	FlashImage     string  `toml:"flash_image"`
	FlashSize      int64   `toml:"flash_size"`
	EraseUnit      int64   `toml:"erase_unit"`
	WriteBlock     int64   `toml:"write_block"`
	Source         string  `toml:"source"`
	ToneHz         float64 `toml:"tone_hz"`
	Amplitude      int     `toml:"amplitude"`
	Verify         *bool   `toml:"verify"`
	LogLevel       string  `toml:"log_level"`
	MetricsAddr    string  `toml:"metrics_addr"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.hwv/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".hwv", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setInt("sample-rate", fc.SampleRateHz, &cfg.SampleRateHz)
	s.setInt("bits", fc.BitsPerSample, &cfg.BitsPerSample)
	s.setInt("channels", fc.Channels, &cfg.Channels)
	s.setInt("block-count", fc.BlockCount, &cfg.BlockCount)
	s.setInt("read-chunk", fc.ReadChunk, &cfg.ReadChunk)
	s.setInt("amplitude", fc.Amplitude, &cfg.Amplitude)

	if err := s.setDuration("block-interval", fc.BlockInterval, &cfg.BlockInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("acquire-timeout", fc.AcquireTimeout, &cfg.AcquireTimeout); err != nil {
		return err
	}

	s.setString("flash-image", fc.FlashImage, &cfg.FlashImage)
	s.setInt64("flash-size", fc.FlashSize, &cfg.FlashSize)
	s.setInt64("erase-unit", fc.EraseUnit, &cfg.EraseUnit)
	s.setInt64("write-block", fc.WriteBlock, &cfg.WriteBlock)

	s.setString("source", fc.Source, &cfg.Source)
	s.setFloat("tone-hz", fc.ToneHz, &cfg.ToneHz)

	s.setBool("verify", fc.Verify, &cfg.Verify)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
