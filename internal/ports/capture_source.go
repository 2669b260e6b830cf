package ports

import (
	"context"
	"time"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/pool"
)

// BlockAllocator hands out blocks for a producer to fill.
// *pool.Pool satisfies this interface.
type BlockAllocator interface {
	// Acquire waits up to timeout for a free block.
	Acquire(ctx context.Context, timeout time.Duration) (*pool.Block, error)

	// BlockSize returns the size of every block in bytes.
	BlockSize() int
}

// CaptureSource abstracts the digital microphone peripheral.
// Delivery beneath ReadNext is asynchronous; the calls themselves are
// synchronous from the pipeline's perspective.
type CaptureSource interface {
	Device

	// Configure applies the stream format and binds the allocator the
	// producer fills. It must be called before Start.
	// Returns domain.ErrConfiguration if the format is rejected.
	Configure(cfg domain.StreamConfig, blocks BlockAllocator) error

	// Start arms continuous sampling. Calling Start on a started source is a no-op.
	Start() error

	// ReadNext returns the next filled block, in capture order.
	// Returns domain.ErrTimeout if none is delivered within timeout.
	// The caller owns the returned block and must release it.
	ReadNext(ctx context.Context, timeout time.Duration) (*pool.Block, error)

	// Stop disarms sampling and releases filled blocks nobody read.
	// Calling Stop on a stopped source is a no-op.
	Stop() error
}
