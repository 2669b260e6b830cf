package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/hwv/internal/cliconfig"
)

const helpDescription = `
Capture audio from the board's PDM microphone into external NOR flash,
read it back and print it in the shell's sample dump format.

Highlights:
  - Fixed pool of capture blocks; the flash writer never falls behind unnoticed.
  - Power domain resumed and suspended around every session, on every path.
  - Configure via file ($HOME/.hwv/config.toml), HWV_* env, or flags.
  - Runs against the simulated microphone and an emulated flash image.
`

var exampleUsage = strings.TrimSpace(`
  hwv mic capture 2 > dump.txt
  hwv wavgen -i dump.txt -o capture.wav
  hwv flash info --flash-image /var/lib/hwv/flash.bin
  hwv shell --metrics-addr :9464
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the resolved configuration into subcommands.
type cli struct {
	cfg     cliconfig.Config
	base    cliconfig.Config // defaults plus flags, before file and env
	cfgPath string
	changed map[string]bool
	freeRun bool
	log     zerolog.Logger
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig(), log: cliconfig.Logger(cliconfig.DefaultLogLevel)}

	root := &cobra.Command{
		Use:           "hwv",
		Short:         "Microphone capture-to-flash hardware validation tool",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.hwv/config.toml)")

	f.IntVar(&c.cfg.SampleRateHz, "sample-rate", c.cfg.SampleRateHz, "PCM sample rate in Hz")
	f.IntVar(&c.cfg.BitsPerSample, "bits", c.cfg.BitsPerSample, "PCM sample width in bits")
	f.IntVar(&c.cfg.Channels, "channels", c.cfg.Channels, "number of microphone channels")
	f.DurationVar(&c.cfg.BlockInterval, "block-interval", c.cfg.BlockInterval, "audio captured per block")
	f.IntVar(&c.cfg.BlockCount, "block-count", c.cfg.BlockCount, "number of blocks in the capture pool")

	f.DurationVar(&c.cfg.ReadTimeout, "timeout", c.cfg.ReadTimeout, "maximum wait for the next block")
	f.DurationVar(&c.cfg.AcquireTimeout, "acquire-timeout", c.cfg.AcquireTimeout, "maximum producer wait for a free block")
	f.IntVar(&c.cfg.ReadChunk, "read-chunk", c.cfg.ReadChunk, "read-back granularity in bytes")
	if err := f.MarkHidden("read-chunk"); err != nil {
		c.log.Info().Err(err).Msg("failed to hide read-chunk flag")
	}

	f.StringVar(&c.cfg.FlashImage, "flash-image", c.cfg.FlashImage, "flash image file (in-memory flash when empty)")
	f.Int64Var(&c.cfg.FlashSize, "flash-size", c.cfg.FlashSize, "flash size in bytes")
	f.Int64Var(&c.cfg.EraseUnit, "erase-unit", c.cfg.EraseUnit, "flash erase unit in bytes")
	f.Int64Var(&c.cfg.WriteBlock, "write-block", c.cfg.WriteBlock, "flash write block in bytes")

	f.StringVar(&c.cfg.Source, "source", c.cfg.Source, "simulated input: tone[:hz[:amp]], ramp, silence, pcm:<path>, wav:<path>")
	f.Float64Var(&c.cfg.ToneHz, "tone-hz", c.cfg.ToneHz, "tone frequency for --source tone")
	f.IntVar(&c.cfg.Amplitude, "amplitude", c.cfg.Amplitude, "tone amplitude for --source tone")
	f.BoolVar(&c.freeRun, "free-run", false, "produce simulated blocks as fast as the pool allows")

	f.BoolVar(&c.cfg.Verify, "verify", c.cfg.Verify, "compare CRC32 of read-back data with written data")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&c.cfg.MetricsAddr, "metrics-addr", c.cfg.MetricsAddr, "metrics listen address in shell mode (\"none\" disables)")

	root.AddCommand(
		c.micCmd(),
		c.flashCmd(),
		c.shellCmd(),
		wavgenCmd(),
	)

	if err := root.Execute(); err != nil {
		c.log.Error().Err(err).Msg("hwv")
		os.Exit(1)
	}
}

// load resolves configuration: defaults, then the config file, then HWV_*
// env, with explicitly set flags winning over both.
func (c *cli) load(cmd *cobra.Command) error {
	c.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { c.changed[f.Name] = true })

	c.base = c.cfg
	cfg, err := c.resolve(c.base)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log = cliconfig.Logger(cfg.LogLevel)
	c.log.Debug().Interface("config", cfg).Msg("configuration")
	return nil
}

func (c *cli) configFile() string {
	if c.cfgPath != "" {
		return c.cfgPath
	}
	return cliconfig.DefaultConfigPath()
}

// reloadConfig resolves the config file and env again on top of defaults
// and flags, so keys removed from the file fall back to them.
func (c *cli) reloadConfig() (cliconfig.Config, error) {
	return c.resolve(c.base)
}

func (c *cli) resolve(base cliconfig.Config) (cliconfig.Config, error) {
	cfg := base
	if path := c.configFile(); path != "" && cliconfig.FileExists(path) {
		fc, err := cliconfig.LoadFileConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&cfg, fc, c.changed); err != nil {
			return cfg, err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&cfg, c.changed); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
