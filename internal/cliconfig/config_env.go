package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (HWV_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	for _, e := range []struct {
		flag, env string
		dst       *int
	}{
		{"sample-rate", "HWV_SAMPLE_RATE_HZ", &cfg.SampleRateHz},
		{"bits", "HWV_BITS_PER_SAMPLE", &cfg.BitsPerSample},
		{"channels", "HWV_CHANNELS", &cfg.Channels},
		{"block-count", "HWV_BLOCK_COUNT", &cfg.BlockCount},
		{"read-chunk", "HWV_READ_CHUNK", &cfg.ReadChunk},
		{"amplitude", "HWV_AMPLITUDE", &cfg.Amplitude},
	} {
		if err := s.setIntFromString(e.flag, os.Getenv(e.env), e.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("block-interval", os.Getenv("HWV_BLOCK_INTERVAL"), &cfg.BlockInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("HWV_READ_TIMEOUT"), &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("acquire-timeout", os.Getenv("HWV_ACQUIRE_TIMEOUT"), &cfg.AcquireTimeout); err != nil {
		return err
	}

	s.setString("flash-image", os.Getenv("HWV_FLASH_IMAGE"), &cfg.FlashImage)
	if err := s.setInt64FromString("flash-size", os.Getenv("HWV_FLASH_SIZE"), &cfg.FlashSize); err != nil {
		return err
	}
	if err := s.setInt64FromString("erase-unit", os.Getenv("HWV_ERASE_UNIT"), &cfg.EraseUnit); err != nil {
		return err
	}
	if err := s.setInt64FromString("write-block", os.Getenv("HWV_WRITE_BLOCK"), &cfg.WriteBlock); err != nil {
		return err
	}

	s.setString("source", os.Getenv("HWV_SOURCE"), &cfg.Source)
	if err := s.setFloatFromString("tone-hz", os.Getenv("HWV_TONE_HZ"), &cfg.ToneHz); err != nil {
		return err
	}

	s.setBoolFromString("verify", os.Getenv("HWV_VERIFY"), &cfg.Verify)
	s.setString("log-level", os.Getenv("HWV_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("metrics-addr", os.Getenv("HWV_METRICS_ADDR"), &cfg.MetricsAddr)

	return nil
}
