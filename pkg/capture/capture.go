package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/hwv/internal/adapters/dmic"
	"github.com/bft-labs/hwv/internal/adapters/flash"
	logAdapter "github.com/bft-labs/hwv/internal/adapters/log"
	"github.com/bft-labs/hwv/internal/adapters/metrics"
	"github.com/bft-labs/hwv/internal/app"
	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/pool"
	"github.com/bft-labs/hwv/internal/ports"
	"github.com/bft-labs/hwv/internal/report"
)

// Re-export types from internal packages for convenient access.
type (
	// Logger is the interface for structured logging.
	Logger = ports.Logger

	// Field is a structured log field.
	Field = ports.Field

	// Observer receives capture session events.
	Observer = ports.SessionObserver

	// Source is a microphone that delivers filled blocks in capture order.
	Source = ports.CaptureSource

	// Sink is an erase-before-write storage device with a power domain.
	Sink = ports.StorageSink

	// Geometry describes the erase and write granularity of a Sink.
	Geometry = ports.Geometry

	// StreamConfig describes the PCM stream requested from the microphone.
	StreamConfig = domain.StreamConfig

	// Recording is the read-back payload of a successful session.
	Recording = domain.Recording

	// Phase is the lifecycle phase of the capture pipeline.
	Phase = domain.Phase

	// StageError records where a session failed.
	StageError = domain.StageError
)

// Session errors. Check with errors.Is.
var (
	ErrDeviceNotReady    = domain.ErrDeviceNotReady
	ErrConfiguration     = domain.ErrConfiguration
	ErrTimeout           = domain.ErrTimeout
	ErrIO                = domain.ErrIO
	ErrResourceBusy      = domain.ErrResourceBusy
	ErrSessionInProgress = domain.ErrSessionInProgress
	ErrOutOfSpace        = domain.ErrOutOfSpace
	ErrVerification      = domain.ErrVerification
)

// Code returns the negative errno-style code for err.
func Code(err error) int {
	return domain.Code(err)
}

// ErrorLine formats err the way the shell reports a failed capture.
func ErrorLine(err error) string {
	return report.ErrorLine(err)
}

// Config holds the configuration of a Recorder.
type Config struct {
	Stream     StreamConfig
	BlockCount int

	ReadTimeout    time.Duration
	AcquireTimeout time.Duration

	// ReadChunk is the read-back granularity in bytes.
	ReadChunk int

	// RegionOffset is where each session erases and writes.
	RegionOffset int64

	Verify bool

	// Source selects the simulated microphone input, see dmic.ParseGenerator.
	// "tone" without arguments uses ToneHz and Amplitude.
	Source    string
	ToneHz    float64
	Amplitude int

	// FlashImage persists the emulated flash to a file when set.
	FlashImage string
	Geometry   Geometry
}

// DefaultConfig returns the reference board configuration.
func DefaultConfig() Config {
	return Config{
		Stream:         domain.DefaultStreamConfig(),
		BlockCount:     domain.DefaultBlockCount,
		ReadTimeout:    domain.DefaultReadTimeout,
		AcquireTimeout: domain.DefaultReadTimeout,
		ReadChunk:      app.DefaultReadChunk,
		Source:         "tone",
		ToneHz:         440,
		Amplitude:      8000,
		Geometry:       flash.DefaultGeometry(),
	}
}

// SetDefaults fills zero fields with reference values.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.Stream.SampleRateHz == 0 {
		c.Stream = d.Stream
	}
	if c.BlockCount <= 0 {
		c.BlockCount = d.BlockCount
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = d.ReadChunk
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.ToneHz <= 0 {
		c.ToneHz = d.ToneHz
	}
	if c.Amplitude == 0 {
		c.Amplitude = d.Amplitude
	}
	if c.Geometry == (Geometry{}) {
		c.Geometry = d.Geometry
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if c.BlockCount <= 0 {
		return fmt.Errorf("%w: block count must be positive", ErrConfiguration)
	}
	if c.RegionOffset < 0 {
		return fmt.Errorf("%w: region offset must not be negative", ErrConfiguration)
	}
	return nil
}

// Recorder runs capture sessions against one source and one sink.
// It is safe for concurrent use; overlapping sessions are rejected with
// ErrSessionInProgress.
type Recorder struct {
	config   Config
	pipeline *app.Pipeline
	blocks   *pool.Pool
	source   ports.CaptureSource
	sink     ports.StorageSink
	logger   ports.Logger
	closer   func() error

	mu sync.Mutex
}

// New creates a Recorder. The default devices are created from cfg unless
// replaced with WithSource or WithSink.
func New(cfg Config, opts ...Option) (*Recorder, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logAdapter.NewNoopLogger()
	}

	blocks, err := pool.New(cfg.BlockCount, cfg.Stream.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	source := o.source
	if source == nil {
		source, err = newSimulator(cfg, o)
		if err != nil {
			return nil, err
		}
	}

	r := &Recorder{config: cfg, blocks: blocks, source: source, logger: o.logger, closer: func() error { return nil }}

	r.sink = o.sink
	if r.sink == nil {
		dev, err := openFlash(cfg)
		if err != nil {
			return nil, err
		}
		r.sink = dev
		r.closer = dev.Close
	}

	var observer ports.SessionObserver
	switch len(o.observers) {
	case 0:
	case 1:
		observer = o.observers[0]
	default:
		observer = metrics.Multi(o.observers)
	}

	r.pipeline, err = app.NewPipeline(app.PipelineConfig{
		Stream:       cfg.Stream,
		ReadTimeout:  cfg.ReadTimeout,
		RegionOffset: cfg.RegionOffset,
		ReadChunk:    cfg.ReadChunk,
		Verify:       cfg.Verify,
	}, source, r.sink, blocks, o.logger, observer)
	if err != nil {
		_ = r.closer()
		return nil, err
	}
	return r, nil
}

func newSimulator(cfg Config, o options) (*dmic.Simulator, error) {
	var gen dmic.Generator
	if cfg.Source == "tone" {
		gen = &dmic.Tone{FrequencyHz: cfg.ToneHz, Amplitude: int16(cfg.Amplitude)}
	} else {
		var err error
		gen, err = dmic.ParseGenerator(cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	simOpts := []dmic.Option{dmic.WithLogger(o.logger), dmic.WithAcquireTimeout(cfg.AcquireTimeout)}
	if o.pacing != nil {
		simOpts = append(simOpts, dmic.WithPacing(*o.pacing))
	}
	return dmic.New("dmic0", gen, simOpts...), nil
}

func openFlash(cfg Config) (*flash.Device, error) {
	if cfg.FlashImage != "" {
		return flash.OpenImage("flash0", cfg.FlashImage, cfg.Geometry)
	}
	return flash.NewMemory("flash0", cfg.Geometry)
}

// Capture records seconds of audio (one when seconds <= 0) into flash and
// returns the data read back from it.
func (r *Recorder) Capture(ctx context.Context, seconds int) (Recording, error) {
	if !r.mu.TryLock() {
		return Recording{}, ErrSessionInProgress
	}
	defer r.mu.Unlock()
	return r.pipeline.Run(ctx, seconds)
}

// Erase erases the erase unit containing the capture region, bracketing
// the operation with a power domain resume and suspend.
func (r *Recorder) Erase() (offset, size int64, err error) {
	if !r.mu.TryLock() {
		return 0, 0, ErrSessionInProgress
	}
	defer r.mu.Unlock()

	if err := r.sink.PowerResume(); err != nil {
		_ = r.sink.PowerSuspend()
		return 0, 0, &StageError{Phase: domain.PhaseResuming, Err: err}
	}
	offset = r.config.RegionOffset
	size, err = r.sink.RegionSize(offset)
	if err == nil {
		err = r.sink.Erase(offset, size)
	}
	if serr := r.sink.PowerSuspend(); err == nil && serr != nil {
		return offset, size, &StageError{Phase: domain.PhaseSuspending, Err: serr}
	}
	if err != nil {
		return offset, size, &StageError{Phase: domain.PhaseErasing, Err: err}
	}
	r.logger.Info("flash region erased", ports.Int64("offset", offset), ports.Int64("size", size))
	return offset, size, nil
}

// Config returns the recorder configuration with defaults applied.
func (r *Recorder) Config() Config {
	return r.config
}

// Phase returns the current pipeline phase.
func (r *Recorder) Phase() Phase {
	return r.pipeline.Phase()
}

// Sink returns the storage device.
func (r *Recorder) Sink() Sink {
	return r.sink
}

// Source returns the capture device.
func (r *Recorder) Source() Source {
	return r.source
}

// Close releases the default flash device. Injected devices are left open.
func (r *Recorder) Close() error {
	return r.closer()
}
