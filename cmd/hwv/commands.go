package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	logAdapter "github.com/bft-labs/hwv/internal/adapters/log"
	"github.com/bft-labs/hwv/internal/adapters/metrics"
	"github.com/bft-labs/hwv/internal/cliconfig"
	"github.com/bft-labs/hwv/internal/configwatch"
	"github.com/bft-labs/hwv/internal/report"
	"github.com/bft-labs/hwv/internal/shell"
	"github.com/bft-labs/hwv/pkg/capture"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func (c *cli) recorderConfig(cfg cliconfig.Config) capture.Config {
	return capture.Config{
		Stream:         cfg.StreamConfig(),
		BlockCount:     cfg.BlockCount,
		ReadTimeout:    cfg.ReadTimeout,
		AcquireTimeout: cfg.AcquireTimeout,
		ReadChunk:      cfg.ReadChunk,
		Verify:         cfg.Verify,
		Source:         cfg.Source,
		ToneHz:         cfg.ToneHz,
		Amplitude:      cfg.Amplitude,
		FlashImage:     cfg.FlashImage,
		Geometry:       cfg.Geometry(),
	}
}

func (c *cli) newRecorder(cfg cliconfig.Config, observers ...capture.Observer) (*capture.Recorder, error) {
	opts := []capture.Option{capture.WithLogger(logAdapter.NewZerologAdapterWithLogger(c.log))}
	for _, o := range observers {
		opts = append(opts, capture.WithObserver(o))
	}
	if c.freeRun {
		opts = append(opts, capture.WithSourcePacing(0))
	}
	rec, err := capture.New(c.recorderConfig(cfg), opts...)
	if err != nil {
		return nil, fmt.Errorf("create recorder: %w", err)
	}
	return rec, nil
}

// withRecorder runs fn against a recorder built from the resolved config.
func (c *cli) withRecorder(fn func(ctx context.Context, rec *capture.Recorder) error) error {
	rec, err := c.newRecorder(c.cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, rec)
}

func (c *cli) micCmd() *cobra.Command {
	mic := &cobra.Command{Use: "mic", Short: "Microphone"}
	mic.AddCommand(&cobra.Command{
		Use:   "capture [seconds]",
		Short: "Capture microphone data into flash and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRecorder(func(ctx context.Context, rec *capture.Recorder) error {
				return shell.MicCapture(ctx, cmd.OutOrStdout(), rec, args)
			})
		},
	})
	return mic
}

func (c *cli) flashCmd() *cobra.Command {
	flash := &cobra.Command{Use: "flash", Short: "External flash"}
	flash.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Show flash geometry and power state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withRecorder(func(_ context.Context, rec *capture.Recorder) error {
					return shell.FlashInfo(cmd.OutOrStdout(), rec)
				})
			},
		},
		&cobra.Command{
			Use:   "erase",
			Short: "Erase the capture region",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withRecorder(func(_ context.Context, rec *capture.Recorder) error {
					return shell.FlashErase(cmd.OutOrStdout(), rec)
				})
			},
		},
	)
	return flash
}

func (c *cli) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [command...]",
		Short: "Run the interactive hwv shell, or one shell command",
		Example: `  hwv shell
  hwv shell hwv mic capture 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runShell(args)
		},
	}
}

func (c *cli) runShell(args []string) error {
	observer := metrics.New(prometheus.DefaultRegisterer)
	rec, err := c.newRecorder(c.cfg, observer)
	if err != nil {
		return err
	}
	sh := shell.New(rec, logAdapter.NewZerologAdapterWithLogger(c.log))
	defer func() {
		if r, ok := sh.Swap(nil).(*capture.Recorder); ok && r != nil {
			_ = r.Close()
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	if len(args) > 0 {
		return sh.Process(ctx, args...)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return sh.Run(gctx)
	})

	if addr := c.cfg.MetricsAddr; addr != "" && addr != "none" {
		g.Go(func() error {
			return serveMetrics(gctx, addr)
		})
		c.log.Info().Str("addr", addr).Msg("metrics server listening")
	}

	if path := c.configFile(); path != "" && cliconfig.FileExists(path) {
		w := configwatch.New(configwatch.Config{Path: path}, func(string) {
			c.reload(sh, observer)
		}, logAdapter.NewZerologAdapterWithLogger(c.log))
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	return g.Wait()
}

// reload rebuilds the recorder from the changed config file and swaps it
// into the shell. The previous configuration stays active on error.
func (c *cli) reload(sh *shell.Shell, observer capture.Observer) {
	cfg, err := c.reloadConfig()
	if err != nil {
		c.log.Warn().Err(err).Msg("config reload rejected")
		return
	}
	rec, err := c.newRecorder(cfg, observer)
	if err != nil {
		c.log.Warn().Err(err).Msg("config reload rejected")
		return
	}
	if old, ok := sh.Swap(rec).(*capture.Recorder); ok && old != nil {
		_ = old.Close()
	}
	c.log.Info().Str("source", cfg.Source).Msg("configuration reloaded")
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func wavgenCmd() *cobra.Command {
	var input, output string
	var rate int

	cmd := &cobra.Command{
		Use:   "wavgen",
		Short: "Convert a captured sample dump into a WAV file",
		Example: `  hwv mic capture 2 | hwv wavgen -o capture.wav
  hwv wavgen -i dump.txt -o capture.wav`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			out, err := os.Create(output)
			if err != nil {
				return err
			}

			format := report.DumpFormat
			format.SampleRate = rate
			n, err := report.ConvertDump(in, out, format)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("wavgen: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d samples to %s\n", n, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "capture dump file (\"-\" reads stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output WAV file")
	cmd.Flags().IntVar(&rate, "rate", report.DumpFormat.SampleRate, "sample rate written to the WAV header")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

