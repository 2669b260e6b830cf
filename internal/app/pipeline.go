package app

import (
	"context"
	"fmt"
	"hash"
	"hash/crc32"
	"time"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
	"github.com/bft-labs/hwv/internal/pool"
)

// DefaultReadChunk is the read-back granularity: one 16-bit sample.
const DefaultReadChunk = 2

// PipelineConfig contains configuration for capture sessions.
type PipelineConfig struct {
	Stream      domain.StreamConfig
	ReadTimeout time.Duration

	// RegionOffset is the base offset of the erased region.
	RegionOffset int64

	// ReadChunk is the number of bytes fetched per read-back call.
	ReadChunk int

	// Verify compares a CRC32 of the read-back bytes with the written bytes.
	Verify bool
}

// Pipeline drives capture sessions from a source into a sink.
// A Pipeline holds ready devices; sessions are serialized and a concurrent
// Run is rejected with domain.ErrSessionInProgress.
type Pipeline struct {
	config    PipelineConfig
	source    ports.CaptureSource
	sink      ports.StorageSink
	blocks    ports.BlockAllocator
	logger    ports.Logger
	observer  ports.SessionObserver
	lifecycle *Lifecycle
}

// NewPipeline negotiates readiness of source and sink and returns a pipeline
// bound to them.
// Returns domain.ErrDeviceNotReady if either device is absent and
// domain.ErrConfiguration if the pool geometry does not match the stream.
func NewPipeline(
	config PipelineConfig,
	source ports.CaptureSource,
	sink ports.StorageSink,
	blocks ports.BlockAllocator,
	logger ports.Logger,
	observer ports.SessionObserver,
) (*Pipeline, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if observer == nil {
		observer = noopObserver{}
	}

	switch {
	case source == nil:
		return nil, fmt.Errorf("capture source: %w", domain.ErrDeviceNotReady)
	case sink == nil:
		return nil, fmt.Errorf("storage sink: %w", domain.ErrDeviceNotReady)
	case blocks == nil:
		return nil, fmt.Errorf("block pool: %w", domain.ErrDeviceNotReady)
	}

	for _, d := range []ports.Device{source, sink} {
		if err := d.Ready(); err != nil {
			logger.Error("device not ready", ports.String("device", d.Name()), ports.Err(err))
			return nil, fmt.Errorf("%s: %w: %v", d.Name(), domain.ErrDeviceNotReady, err)
		}
	}

	if err := config.Stream.Validate(); err != nil {
		return nil, err
	}
	if got, want := blocks.BlockSize(), config.Stream.BlockSize(); got != want {
		return nil, fmt.Errorf("%w: pool block size %d does not match stream block size %d",
			domain.ErrConfiguration, got, want)
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = domain.DefaultReadTimeout
	}
	if config.ReadChunk <= 0 {
		config.ReadChunk = DefaultReadChunk
	}

	return &Pipeline{
		config:    config,
		source:    source,
		sink:      sink,
		blocks:    blocks,
		logger:    logger,
		observer:  observer,
		lifecycle: NewLifecycle(logger, observer),
	}, nil
}

// Phase returns the current pipeline phase.
func (p *Pipeline) Phase() domain.Phase {
	return p.lifecycle.Phase()
}

// Config returns the pipeline configuration with defaults applied.
func (p *Pipeline) Config() PipelineConfig {
	return p.config
}

// Run captures seconds of audio (one second if seconds <= 0), persists it
// to the sink and returns the read-back recording.
// On failure the first error encountered is returned as a *domain.StageError;
// the source is stopped and the sink suspended on every path.
func (p *Pipeline) Run(ctx context.Context, seconds int) (domain.Recording, error) {
	if !p.lifecycle.Begin("capture requested") {
		return domain.Recording{}, domain.ErrSessionInProgress
	}

	r := &run{
		Pipeline: p,
		ctx:      ctx,
		session:  domain.NewSession(seconds, p.config.Stream),
		crc:      crc32.NewIEEE(),
	}
	r.session.Phase = domain.PhaseResuming

	p.logger.Info("capture session starting",
		ports.Int("seconds", r.session.Seconds),
		ports.Int("iterations", r.session.Iterations),
		ports.Int("block_size", r.session.BlockSize),
	)

	data := r.execute()
	err := r.session.Err()
	elapsed := time.Since(r.session.StartedAt)

	r.enter(domain.PhaseIdle, "session finished")
	p.observer.OnSessionEnd(r.session.Written, r.session.Offset-r.session.Region.Offset, elapsed, err)

	if err != nil {
		p.logger.Error("capture session failed",
			ports.Err(err),
			ports.Int("code", domain.Code(err)),
			ports.Int("blocks_written", r.session.Written),
		)
		return domain.Recording{}, err
	}

	p.logger.Info("capture session complete",
		ports.Int("blocks", r.session.Written),
		ports.Int("bytes", len(data)),
		ports.Duration("duration", elapsed),
	)
	return domain.Recording{
		Format:     p.config.Stream,
		Iterations: r.session.Written,
		Data:       data,
		CRC32:      r.crc.Sum32(),
	}, nil
}

// run is the state of a single session.
type run struct {
	*Pipeline
	ctx     context.Context
	session *domain.Session
	crc     hash.Hash32
	stopped bool
}

func (r *run) execute() []byte {
	power := r.resume()
	defer r.suspend(power)
	if r.session.Failed() {
		return nil
	}

	if !r.erase() {
		return nil
	}
	// A failed stop leaves capture reporting success, so check the session too.
	if !r.capture() || r.session.Failed() {
		return nil
	}
	return r.readBack()
}

func (r *run) resume() *poweredSink {
	power, err := acquirePower(r.sink)
	if err != nil {
		r.fail("resume", err)
	}
	return power
}

func (r *run) erase() bool {
	r.enter(domain.PhaseErasing, "power domain active")

	base := r.config.RegionOffset
	size, err := r.sink.RegionSize(base)
	if err != nil {
		r.fail("query region", err)
		return false
	}
	if err := r.sink.Erase(base, size); err != nil {
		r.fail("erase", err)
		return false
	}

	r.session.Region = domain.Region{Offset: base, Size: size}
	r.session.Offset = base
	r.logger.Debug("region erased", ports.Int64("offset", base), ports.Int64("size", size))

	if r.session.ExpectedBytes() > size {
		r.logger.Warn("capture exceeds erased region",
			ports.Int64("expected_bytes", r.session.ExpectedBytes()),
			ports.Int64("region_size", size),
		)
	}
	return true
}

// capture arms the source and persists every block in order. The source is
// stopped when capture returns, on every path.
func (r *run) capture() bool {
	r.enter(domain.PhaseCapturing, "region erased")
	defer r.stop()

	if err := r.source.Configure(r.config.Stream, r.blocks); err != nil {
		r.fail("configure", err)
		return false
	}
	if err := r.source.Start(); err != nil {
		r.fail("start", err)
		return false
	}

	for i := 0; i < r.session.Iterations; i++ {
		if !r.step(i) {
			return false
		}
	}
	return true
}

// step reads one block and writes it at the current offset. The block is
// released whether or not the write succeeds.
func (r *run) step(i int) bool {
	if err := r.ctx.Err(); err != nil {
		r.fail("read", err)
		return false
	}

	blk, err := r.source.ReadNext(r.ctx, r.config.ReadTimeout)
	if err != nil {
		r.fail("read", err)
		return false
	}
	if blk == nil {
		r.fail("read", fmt.Errorf("source returned no block for iteration %d: %w", i, domain.ErrIO))
		return false
	}
	defer r.release(blk)

	data := blk.Bytes()
	if len(data) != r.session.BlockSize {
		r.fail("read", fmt.Errorf("short block %d: %d of %d bytes: %w",
			i, len(data), r.session.BlockSize, domain.ErrIO))
		return false
	}
	if !r.session.Region.Fits(r.session.Offset, len(data)) {
		r.fail("write", fmt.Errorf("block %d at offset %d exceeds erased region of %d bytes: %w",
			i, r.session.Offset, r.session.Region.Size, domain.ErrOutOfSpace))
		return false
	}
	if err := r.sink.Write(r.session.Offset, data); err != nil {
		r.fail("write", err)
		return false
	}

	r.crc.Write(data)
	r.observer.OnBlockWritten(r.session.Offset, len(data))
	r.logger.Debug("block written",
		ports.Int("iteration", i),
		ports.Int64("offset", r.session.Offset),
		ports.Int("size", len(data)),
	)
	r.session.Advance(len(data))
	return true
}

func (r *run) release(blk *pool.Block) {
	if err := blk.Release(); err != nil {
		r.logger.Warn("block release failed", ports.Int("block", blk.Index()), ports.Err(err))
	}
}

// stop disarms the source once per session. A failure is authoritative only
// if nothing failed before it.
func (r *run) stop() {
	if r.stopped {
		return
	}
	r.stopped = true
	reason := "capture complete"
	if r.session.Failed() {
		reason = "cleanup"
	}
	r.enter(domain.PhaseStopping, reason)

	if err := r.source.Stop(); err != nil {
		if r.session.Failed() {
			r.logger.Warn("source stop failed during cleanup", ports.Err(err))
			return
		}
		r.fail("stop", err)
	}
}

func (r *run) readBack() []byte {
	r.enter(domain.PhaseReadingBack, "source stopped")

	base := r.session.Region.Offset
	n := int(r.session.Offset - base)
	out := make([]byte, n)
	chunk := r.config.ReadChunk
	for off := 0; off < n; off += chunk {
		end := off + chunk
		if end > n {
			end = n
		}
		if err := r.sink.Read(base+int64(off), out[off:end]); err != nil {
			r.fail("read back", err)
			return nil
		}
	}

	if r.config.Verify {
		if got, want := crc32.ChecksumIEEE(out), r.crc.Sum32(); got != want {
			r.fail("verify", fmt.Errorf("read-back crc32 %08x, written %08x: %w", got, want, domain.ErrVerification))
			return nil
		}
	}
	return out
}

// suspend drains the error path through Stopping and releases the power
// domain. A suspend failure is authoritative only if nothing failed before it.
func (r *run) suspend(power *poweredSink) {
	if r.session.Failed() && !r.stopped {
		r.stop()
	}
	reason := "read back complete"
	if r.session.Failed() {
		reason = "cleanup"
	}
	r.enter(domain.PhaseSuspending, reason)

	if err := power.release(); err != nil {
		if r.session.Failed() {
			r.logger.Warn("power suspend failed during cleanup", ports.Err(err))
			return
		}
		r.fail("suspend", err)
	}
}

// fail records err as the session error if it is the first one and moves
// the pipeline to PhaseError.
func (r *run) fail(op string, err error) {
	phase := r.session.Phase
	r.session.Fail(phase, op, err)
	r.logger.Error("session stage failed",
		ports.String("phase", phase.String()),
		ports.String("op", op),
		ports.Err(err),
	)
	if phase != domain.PhaseError && phase != domain.PhaseSuspending {
		r.enter(domain.PhaseError, op+" failed")
	}
}

func (r *run) enter(phase domain.Phase, reason string) {
	if err := r.lifecycle.TransitionTo(phase, reason); err != nil {
		r.logger.Error("phase transition rejected",
			ports.String("from", r.session.Phase.String()),
			ports.String("to", phase.String()),
			ports.Err(err),
		)
		return
	}
	r.session.Phase = phase
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...ports.Field) {}
func (noopLogger) Info(msg string, fields ...ports.Field)  {}
func (noopLogger) Warn(msg string, fields ...ports.Field)  {}
func (noopLogger) Error(msg string, fields ...ports.Field) {}

type noopObserver struct{}

func (noopObserver) OnPhaseChange(previous, current domain.Phase, reason string)           {}
func (noopObserver) OnBlockWritten(offset int64, size int)                                 {}
func (noopObserver) OnSessionEnd(iterations int, bytes int64, d time.Duration, err error) {}
