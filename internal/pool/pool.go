// Package pool provides a fixed-capacity pool of fixed-size audio blocks.
//
// The pool pre-allocates every block at construction time and only ever
// recycles them. Its bounded capacity is the backpressure mechanism between
// the asynchronous capture producer and the synchronous storage writer.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bft-labs/hwv/internal/domain"
)

var (
	// ErrBlockReleased is returned when a block is released more than once.
	ErrBlockReleased = errors.New("pool: block already released")

	// ErrForeignBlock is returned when a block is released to a pool that did not allocate it.
	ErrForeignBlock = errors.New("pool: block belongs to another pool")
)

// Block is a fixed-size buffer owned by exactly one party at a time.
// A block obtained from Acquire must be released exactly once.
type Block struct {
	pool  *Pool
	index int
	buf   []byte
	n     int
	inUse atomic.Bool
}

// Index returns the position of the block within its pool.
func (b *Block) Index() int {
	return b.index
}

// Buffer returns the full backing buffer for the producer to fill.
func (b *Block) Buffer() []byte {
	return b.buf
}

// SetLen records how many bytes of the buffer hold valid data.
func (b *Block) SetLen(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(b.buf) {
		n = len(b.buf)
	}
	b.n = n
}

// Len returns the number of valid bytes.
func (b *Block) Len() int {
	return b.n
}

// Bytes returns the valid portion of the buffer.
func (b *Block) Bytes() []byte {
	return b.buf[:b.n]
}

// Release returns the block to its pool.
// Returns ErrBlockReleased if the block is not currently checked out.
func (b *Block) Release() error {
	return b.pool.Release(b)
}

// Pool is a fixed-capacity recycling allocator of Blocks.
// Acquire and Release are safe for concurrent use.
type Pool struct {
	free        chan *Block
	blockSize   int
	capacity    int
	outstanding atomic.Int64
}

// New creates a pool of capacity blocks of blockSize bytes each.
func New(capacity, blockSize int) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool: capacity must be positive, got %d", capacity)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("pool: block size must be positive, got %d", blockSize)
	}

	p := &Pool{
		free:      make(chan *Block, capacity),
		blockSize: blockSize,
		capacity:  capacity,
	}
	for i := 0; i < capacity; i++ {
		p.free <- &Block{pool: p, index: i, buf: make([]byte, blockSize)}
	}
	return p, nil
}

// Capacity returns the number of blocks the pool owns.
func (p *Pool) Capacity() int {
	return p.capacity
}

// BlockSize returns the size of every block in bytes.
func (p *Pool) BlockSize() int {
	return p.blockSize
}

// Outstanding returns the number of blocks currently checked out.
func (p *Pool) Outstanding() int {
	return int(p.outstanding.Load())
}

// Available returns the number of blocks on the free list.
func (p *Pool) Available() int {
	return len(p.free)
}

// Acquire takes a free block, waiting up to timeout for one to be released.
// Returns domain.ErrResourceBusy if none becomes available in time, or the
// context error if ctx is done first. A non-positive timeout does not wait.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Block, error) {
	select {
	case b := <-p.free:
		return p.checkout(b), nil
	default:
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("pool: no free block: %w", domain.ErrResourceBusy)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-p.free:
		return p.checkout(b), nil
	case <-timer.C:
		return nil, fmt.Errorf("pool: no free block after %s: %w", timeout, domain.ErrResourceBusy)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns b to the free list.
func (p *Pool) Release(b *Block) error {
	if b == nil {
		return ErrBlockReleased
	}
	if b.pool != p {
		return ErrForeignBlock
	}
	if !b.inUse.CompareAndSwap(true, false) {
		return ErrBlockReleased
	}
	b.n = 0
	p.outstanding.Add(-1)
	p.free <- b
	return nil
}

func (p *Pool) checkout(b *Block) *Block {
	b.inUse.Store(true)
	b.n = 0
	p.outstanding.Add(1)
	return b
}
