// Package dmic implements a simulated PDM digital microphone.
//
// The simulator reproduces the delivery model of the board driver: once
// started, a producer goroutine fills blocks from the bound allocator at
// the configured block interval and queues them in capture order. Reads
// pull from that queue. When the allocator runs dry the producer reports
// an overrun on the queue and stops producing.
package dmic

import (
	"context"
	"fmt"
	"sync"
	"time"

	adapterlog "github.com/bft-labs/hwv/internal/adapters/log"
	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
	"github.com/bft-labs/hwv/internal/pool"
)

// DecimationRatios are the PCM decimation ratios the PDM filter supports.
var DecimationRatios = []uint32{32, 48, 50, 64, 96, 100, 128}

// queueDepth bounds the delivery queue. The allocator is the real bound.
const queueDepth = 64

type delivery struct {
	blk *pool.Block
	err error
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithPacing sets the delay between produced blocks. Zero free-runs the
// producer, bounded only by the allocator. The default is the configured
// block interval.
func WithPacing(d time.Duration) Option {
	return func(s *Simulator) {
		s.pacing = d
		s.pacingSet = true
	}
}

// WithAcquireTimeout sets how long the producer waits for a free block
// before reporting an overrun.
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Simulator) {
		s.acquireTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(s *Simulator) {
		s.logger = l
	}
}

// Detached makes the simulator report itself as absent from Ready.
func Detached() Option {
	return func(s *Simulator) {
		s.detached = true
	}
}

// Simulator is a ports.CaptureSource backed by a Generator.
type Simulator struct {
	name           string
	gen            Generator
	logger         ports.Logger
	pacing         time.Duration
	pacingSet      bool
	acquireTimeout time.Duration
	detached       bool

	mu         sync.Mutex
	cfg        domain.StreamConfig
	blocks     ports.BlockAllocator
	clockHz    uint32
	ratio      uint32
	configured bool
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	queue      chan delivery
}

var _ ports.CaptureSource = (*Simulator)(nil)

// New creates a simulator named name that produces samples from gen.
func New(name string, gen Generator, opts ...Option) *Simulator {
	if gen == nil {
		gen = Silence{}
	}
	s := &Simulator{
		name:           name,
		gen:            gen,
		acquireTimeout: domain.DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = adapterlog.NewNoopLogger()
	}
	return s
}

// Name implements ports.Device.
func (s *Simulator) Name() string {
	return s.name
}

// Ready implements ports.Device.
func (s *Simulator) Ready() error {
	if s.detached {
		return fmt.Errorf("dmic %s: not present", s.name)
	}
	return nil
}

// Clock returns the PDM clock frequency and decimation ratio selected by
// the last successful Configure.
func (s *Simulator) Clock() (hz uint32, ratio uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clockHz, s.ratio
}

// Configure implements ports.CaptureSource.
func (s *Simulator) Configure(cfg domain.StreamConfig, blocks ports.BlockAllocator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%w: dmic %s: configure while running", domain.ErrConfiguration, s.name)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if blocks == nil {
		return fmt.Errorf("%w: dmic %s: no block allocator", domain.ErrConfiguration, s.name)
	}
	if cfg.BitsPerSample != 16 {
		return fmt.Errorf("%w: dmic %s: %d-bit samples not supported", domain.ErrConfiguration, s.name, cfg.BitsPerSample)
	}
	if cfg.Channels > 2 {
		return fmt.Errorf("%w: dmic %s: %d channels not supported", domain.ErrConfiguration, s.name, cfg.Channels)
	}
	for ch := 0; ch < cfg.Channels; ch++ {
		if pdm, _ := cfg.ChannelMap.Lookup(ch); pdm != 0 {
			return fmt.Errorf("%w: dmic %s: channel %d mapped to missing PDM controller %d",
				domain.ErrConfiguration, s.name, ch, pdm)
		}
	}
	if got, want := blocks.BlockSize(), cfg.BlockSize(); got != want {
		return fmt.Errorf("%w: dmic %s: block size %d, stream needs %d",
			domain.ErrConfiguration, s.name, got, want)
	}

	clock, ratio, err := selectClock(cfg)
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.blocks = blocks
	s.clockHz = clock
	s.ratio = ratio
	s.configured = true
	s.logger.Debug("dmic configured",
		ports.String("device", s.name),
		ports.Int("sample_rate_hz", cfg.SampleRateHz),
		ports.Int("channels", cfg.Channels),
		ports.Int64("pdm_clock_hz", int64(clock)),
		ports.Int64("decimation", int64(ratio)),
	)
	return nil
}

// selectClock picks the first decimation ratio whose PDM clock, at a 50%
// duty cycle, lies inside the configured window.
func selectClock(cfg domain.StreamConfig) (uint32, uint32, error) {
	io := cfg.IO
	if io.MinDutyPercent > 50 || io.MaxDutyPercent < 50 {
		return 0, 0, fmt.Errorf("%w: duty cycle window %d-%d%% excludes 50%%",
			domain.ErrConfiguration, io.MinDutyPercent, io.MaxDutyPercent)
	}
	for _, ratio := range DecimationRatios {
		clock := uint64(cfg.SampleRateHz) * uint64(ratio)
		if clock >= uint64(io.MinClockHz) && clock <= uint64(io.MaxClockHz) {
			return uint32(clock), ratio, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: no PDM clock in %d-%d Hz for %d Hz output",
		domain.ErrConfiguration, io.MinClockHz, io.MaxClockHz, cfg.SampleRateHz)
}

// Start implements ports.CaptureSource.
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return fmt.Errorf("dmic %s: start before configure: %w", s.name, domain.ErrIO)
	}
	if s.running {
		return nil
	}

	pacing := s.cfg.BlockInterval
	if s.pacingSet {
		pacing = s.pacing
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.queue = make(chan delivery, queueDepth)
	s.running = true

	go s.produce(ctx, s.cfg, s.blocks, pacing, s.queue, s.done)
	s.logger.Debug("dmic started", ports.String("device", s.name), ports.Duration("pacing", pacing))
	return nil
}

func (s *Simulator) produce(
	ctx context.Context,
	cfg domain.StreamConfig,
	blocks ports.BlockAllocator,
	pacing time.Duration,
	queue chan<- delivery,
	done chan<- struct{},
) {
	defer close(done)

	var tick <-chan time.Time
	if pacing > 0 {
		ticker := time.NewTicker(pacing)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		}

		blk, err := blocks.Acquire(ctx, s.acquireTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("dmic overrun", ports.String("device", s.name), ports.Err(err))
			fail(ctx, queue, fmt.Errorf("dmic %s: overrun: %w", s.name, domain.ErrResourceBusy))
			return
		}

		n, err := s.gen.Fill(blk.Buffer(), cfg)
		if err != nil {
			_ = blk.Release()
			fail(ctx, queue, fmt.Errorf("dmic %s: %v: %w", s.name, err, domain.ErrIO))
			return
		}
		blk.SetLen(n)

		select {
		case queue <- delivery{blk: blk}:
		case <-ctx.Done():
			_ = blk.Release()
			return
		}
	}
}

func fail(ctx context.Context, queue chan<- delivery, err error) {
	select {
	case queue <- delivery{err: err}:
	case <-ctx.Done():
	}
}

// ReadNext implements ports.CaptureSource.
func (s *Simulator) ReadNext(ctx context.Context, timeout time.Duration) (*pool.Block, error) {
	s.mu.Lock()
	running, queue := s.running, s.queue
	s.mu.Unlock()

	if !running {
		return nil, fmt.Errorf("dmic %s: read while stopped: %w", s.name, domain.ErrIO)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-queue:
		if d.err != nil {
			return nil, d.err
		}
		return d.blk, nil
	case <-timer.C:
		return nil, fmt.Errorf("dmic %s: no block within %s: %w", s.name, timeout, domain.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop implements ports.CaptureSource. Blocks still queued are released.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cancel()
	<-s.done
	s.running = false

	dropped := 0
drain:
	for {
		select {
		case d := <-s.queue:
			if d.blk != nil {
				_ = d.blk.Release()
				dropped++
			}
		default:
			break drain
		}
	}
	s.logger.Debug("dmic stopped", ports.String("device", s.name), ports.Int("dropped_blocks", dropped))
	return nil
}
