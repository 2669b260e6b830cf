package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/hwv/internal/domain"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := New(4, 6400)
	require.NoError(t, err)
	return p
}

func TestNew_RejectsInvalidGeometry(t *testing.T) {
	_, err := New(0, 6400)
	require.Error(t, err)
	_, err = New(4, 0)
	require.Error(t, err)
}

func TestAcquire_PreallocatedBlocks(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		b, err := p.Acquire(ctx, 0)
		require.NoError(t, err)
		require.Len(t, b.Buffer(), 6400)
		require.Zero(t, b.Len())
		seen[b.Index()] = true
	}
	require.Len(t, seen, 4)
	require.Equal(t, 4, p.Outstanding())
	require.Zero(t, p.Available())
}

func TestAcquire_FifthBlocksUntilRelease(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	held := make([]*Block, 0, 4)
	for i := 0; i < 4; i++ {
		b, err := p.Acquire(ctx, 0)
		require.NoError(t, err)
		held = append(held, b)
	}

	got := make(chan *Block, 1)
	go func() {
		b, err := p.Acquire(ctx, 2*time.Second)
		if err == nil {
			got <- b
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("fifth Acquire returned while all blocks were outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, held[2].Release())

	select {
	case b, ok := <-got:
		require.True(t, ok, "fifth Acquire failed")
		require.Same(t, held[2], b)
	case <-time.After(time.Second):
		t.Fatal("fifth Acquire did not return after a release")
	}
	require.Equal(t, 4, p.Outstanding())
}

func TestAcquire_TimesOutWithResourceBusy(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := p.Acquire(ctx, 0)
		require.NoError(t, err)
	}

	start := time.Now()
	_, err := p.Acquire(ctx, 30*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrResourceBusy)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	_, err = p.Acquire(ctx, 0)
	require.ErrorIs(t, err, domain.ErrResourceBusy)
}

func TestAcquire_ContextCanceled(t *testing.T) {
	p := newTestPool(t)
	for i := 0; i < 4; i++ {
		_, err := p.Acquire(context.Background(), 0)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Acquire(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRelease_DoubleRelease(t *testing.T) {
	p := newTestPool(t)
	b, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	require.NoError(t, b.Release())
	require.ErrorIs(t, b.Release(), ErrBlockReleased)
	require.Zero(t, p.Outstanding())
	require.Equal(t, 4, p.Available())
}

func TestRelease_ForeignBlock(t *testing.T) {
	p := newTestPool(t)
	other := newTestPool(t)
	b, err := other.Acquire(context.Background(), 0)
	require.NoError(t, err)

	require.ErrorIs(t, p.Release(b), ErrForeignBlock)
	require.ErrorIs(t, p.Release(nil), ErrBlockReleased)
	require.NoError(t, b.Release())
}

func TestBlock_SetLenClamps(t *testing.T) {
	p := newTestPool(t)
	b, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	b.SetLen(10000)
	require.Equal(t, 6400, b.Len())
	b.SetLen(-1)
	require.Zero(t, b.Len())
	b.SetLen(2)
	require.Len(t, b.Bytes(), 2)
}

func TestPool_ConcurrentProducerConsumer(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()
	blocks := make(chan *Block, 4)

	var maxOutstanding int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(blocks)
		for i := 0; i < 200; i++ {
			b, err := p.Acquire(ctx, time.Second)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			if o := p.Outstanding(); o > maxOutstanding {
				maxOutstanding = o
			}
			mu.Unlock()
			blocks <- b
		}
	}()

	for b := range blocks {
		require.NoError(t, b.Release())
	}
	wg.Wait()

	require.LessOrEqual(t, maxOutstanding, 4)
	require.Zero(t, p.Outstanding())
}
