package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bft-labs/hwv/internal/cliconfig"
	"github.com/bft-labs/hwv/internal/wav"
)

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "source = \"ramp\"\nblock_count = 8\ntone_hz = 1000.0\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HWV_BLOCK_COUNT", "6")

	base := cliconfig.DefaultConfig()
	base.ToneHz = 250
	c := &cli{cfgPath: path, changed: map[string]bool{"tone-hz": true}}

	cfg, err := c.resolve(base)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Source != "ramp" {
		t.Errorf("Source = %q, want ramp from file", cfg.Source)
	}
	if cfg.BlockCount != 6 {
		t.Errorf("BlockCount = %d, want 6 from env", cfg.BlockCount)
	}
	if cfg.ToneHz != 250 {
		t.Errorf("ToneHz = %v, want 250 from flag", cfg.ToneHz)
	}
}

func TestReloadDropsRemovedFileKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("source = \"ramp\"\nblock_count = 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	base := cliconfig.DefaultConfig()
	base.Amplitude = 1200
	c := &cli{cfgPath: path, base: base, changed: map[string]bool{"amplitude": true}}

	cfg, err := c.reloadConfig()
	if err != nil {
		t.Fatalf("initial resolve: %v", err)
	}
	if cfg.Source != "ramp" || cfg.BlockCount != 8 {
		t.Fatalf("initial config = %q/%d, want ramp/8", cfg.Source, cfg.BlockCount)
	}
	c.cfg = cfg

	if err := os.WriteFile(path, []byte("block_count = 6\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = c.reloadConfig()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Source != cliconfig.DefaultSource {
		t.Errorf("Source = %q, want default %q after key removal", cfg.Source, cliconfig.DefaultSource)
	}
	if cfg.BlockCount != 6 {
		t.Errorf("BlockCount = %d, want 6", cfg.BlockCount)
	}
	if cfg.Amplitude != 1200 {
		t.Errorf("Amplitude = %d, want flag value 1200", cfg.Amplitude)
	}
}

func TestResolveRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("read_timeout = \"soon\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := &cli{cfgPath: path, changed: map[string]bool{}}
	if _, err := c.resolve(cliconfig.DefaultConfig()); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestWavgenCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.wav")

	cmd := wavgenCmd()
	cmd.SetIn(strings.NewReader("uart:~$ hwv mic capture\nS\n1\n-2\n3\nE\n"))
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"-o", out, "--rate", "8000"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("wavgen: %v", err)
	}
	if !strings.Contains(stderr.String(), "wrote 3 samples") {
		t.Errorf("stderr = %q", stderr.String())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	format, data, err := wav.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format.SampleRate != 8000 || format.Channels != 1 || format.BitsPerSample != 16 {
		t.Errorf("format = %+v", format)
	}
	if len(data) != 6 {
		t.Errorf("data length = %d, want 6", len(data))
	}
}
