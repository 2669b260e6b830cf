package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				SampleRateHz:   8000,
				BlockInterval:  "100ms",
				BlockCount:     8,
				ReadTimeout:    "2s",
				FlashImage:     "/tmp/flash.bin",
				FlashSize:      4 << 20,
				EraseUnit:      4096,
				Source:         "wav:/tmp/in.wav",
				ToneHz:         1000,
				Amplitude:      100,
				Verify:         &trueVal,
				LogLevel:       "debug",
				MetricsAddr:    "127.0.0.1:9000",
				AcquireTimeout: "50ms",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				SampleRateHz:   8000,
				BlockInterval:  100 * time.Millisecond,
				BlockCount:     8,
				ReadTimeout:    2 * time.Second,
				AcquireTimeout: 50 * time.Millisecond,
				FlashImage:     "/tmp/flash.bin",
				FlashSize:      4 << 20,
				EraseUnit:      4096,
				Source:         "wav:/tmp/in.wav",
				ToneHz:         1000,
				Amplitude:      100,
				Verify:         true,
				LogLevel:       "debug",
				MetricsAddr:    "127.0.0.1:9000",
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Source:      "ramp",
				ReadTimeout: "5s",
			},
			changed: map[string]bool{"source": true},
			initial: Config{
				Source: "silence",
			},
			expected: Config{
				Source:      "silence", // unchanged because flag was set
				ReadTimeout: 5 * time.Second,
			},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{BlockInterval: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
		{
			name:       "ignores zero values",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    DefaultConfig(),
			expected:   DefaultConfig(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyFileConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyFileConfig() unexpected error: %v", err)
				return
			}

			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	// Create a temporary TOML file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
sample_rate_hz = 16000
block_interval = "200ms"
flash_image = "/var/lib/hwv/flash.bin"
erase_unit = 65536
source = "tone"
tone_hz = 880.0
verify = true
`
	if err := os.WriteFile(configPath, []byte(tomlContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.SampleRateHz != 16000 {
		t.Errorf("SampleRateHz = %v, want 16000", fc.SampleRateHz)
	}
	if fc.BlockInterval != "200ms" {
		t.Errorf("BlockInterval = %v, want 200ms", fc.BlockInterval)
	}
	if fc.FlashImage != "/var/lib/hwv/flash.bin" {
		t.Errorf("FlashImage = %v", fc.FlashImage)
	}
	if fc.EraseUnit != 65536 {
		t.Errorf("EraseUnit = %v, want 65536", fc.EraseUnit)
	}
	if fc.ToneHz != 880 {
		t.Errorf("ToneHz = %v, want 880", fc.ToneHz)
	}
	if fc.Verify == nil || !*fc.Verify {
		t.Errorf("Verify = %v, want true", fc.Verify)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFileConfig() on missing file returned nil error")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("sample_rate_hz = \"fast\""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(path); err == nil {
		t.Error("LoadFileConfig() on mistyped value returned nil error")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p := DefaultConfigPath()
	if p == "" {
		t.Skip("no home directory")
	}
	if !strings.HasSuffix(p, filepath.Join(".hwv", "config.toml")) {
		t.Errorf("DefaultConfigPath() = %v", p)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if FileExists(path) {
		t.Error("FileExists() = true before creation")
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("FileExists() = false after creation")
	}
}
