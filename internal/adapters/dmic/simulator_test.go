package dmic

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/pool"
)

func newPool(t *testing.T, capacity int, cfg domain.StreamConfig) *pool.Pool {
	t.Helper()
	p, err := pool.New(capacity, cfg.BlockSize())
	require.NoError(t, err)
	return p
}

func TestConfigure_SelectsClockInsideWindow(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	s := New("dmic0", Silence{})

	require.NoError(t, s.Configure(cfg, newPool(t, 4, cfg)))

	hz, ratio := s.Clock()
	require.Equal(t, uint32(1024000), hz)
	require.Equal(t, uint32(64), ratio)
	require.GreaterOrEqual(t, hz, cfg.IO.MinClockHz)
	require.LessOrEqual(t, hz, cfg.IO.MaxClockHz)
}

func TestConfigure_Rejects(t *testing.T) {
	base := domain.DefaultStreamConfig()

	tests := []struct {
		name   string
		mutate func(*domain.StreamConfig)
	}{
		{"24-bit", func(c *domain.StreamConfig) { c.BitsPerSample = 24 }},
		{"four channels", func(c *domain.StreamConfig) { c.Channels = 4 }},
		{"second controller", func(c *domain.StreamConfig) { c.ChannelMap = domain.BuildChannelMap(0, 1, domain.PDMLeft) }},
		{"clock window too narrow", func(c *domain.StreamConfig) { c.IO.MinClockHz, c.IO.MaxClockHz = 100, 200 }},
		{"duty window excludes half", func(c *domain.StreamConfig) { c.IO.MinDutyPercent, c.IO.MaxDutyPercent = 60, 70 }},
		{"bad interval", func(c *domain.StreamConfig) { c.BlockInterval = 300 * time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			p, err := pool.New(4, base.BlockSize())
			require.NoError(t, err)

			err = New("dmic0", Silence{}).Configure(cfg, p)
			require.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestConfigure_RejectsMismatchedPool(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	p, err := pool.New(4, 1024)
	require.NoError(t, err)

	err = New("dmic0", Silence{}).Configure(cfg, p)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestConfigure_RejectsWhileRunning(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	p := newPool(t, 4, cfg)
	s := New("dmic0", Silence{}, WithPacing(time.Hour))
	require.NoError(t, s.Configure(cfg, p))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.ErrorIs(t, s.Configure(cfg, p), domain.ErrConfiguration)
}

func TestStart_RequiresConfigure(t *testing.T) {
	s := New("dmic0", Silence{})
	require.ErrorIs(t, s.Start(), domain.ErrIO)
}

func TestReadNext_RequiresStart(t *testing.T) {
	s := New("dmic0", Silence{})
	_, err := s.ReadNext(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, domain.ErrIO)
}

func TestReadNext_DeliversInCaptureOrder(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	p := newPool(t, 4, cfg)
	s := New("dmic0", &Ramp{}, WithPacing(0))
	require.NoError(t, s.Configure(cfg, p))
	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")

	samplesPerBlock := cfg.BlockSize() / 2
	for i := 0; i < 10; i++ {
		blk, err := s.ReadNext(context.Background(), time.Second)
		require.NoError(t, err)
		require.Equal(t, cfg.BlockSize(), blk.Len())
		first := binary.LittleEndian.Uint16(blk.Bytes())
		require.Equal(t, uint16(i*samplesPerBlock), first)
		require.NoError(t, blk.Release())
	}

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "second stop is a no-op")
	require.Equal(t, 0, p.Outstanding(), "stop releases queued blocks")
}

func TestReadNext_Timeout(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	s := New("dmic0", Silence{}, WithPacing(time.Hour))
	require.NoError(t, s.Configure(cfg, newPool(t, 4, cfg)))
	require.NoError(t, s.Start())
	defer s.Stop()

	_, err := s.ReadNext(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.Equal(t, domain.Code(domain.ErrTimeout), domain.Code(err))
}

func TestReadNext_ContextCanceled(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	s := New("dmic0", Silence{}, WithPacing(time.Hour))
	require.NoError(t, s.Configure(cfg, newPool(t, 4, cfg)))
	require.NoError(t, s.Start())
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ReadNext(ctx, time.Second)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestProducer_ReportsOverrunWhenPoolExhausted(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	p := newPool(t, 2, cfg)
	s := New("dmic0", Silence{}, WithPacing(0), WithAcquireTimeout(10*time.Millisecond))
	require.NoError(t, s.Configure(cfg, p))
	require.NoError(t, s.Start())

	// Hold both blocks so the producer cannot make progress.
	for i := 0; i < 2; i++ {
		blk, err := s.ReadNext(context.Background(), time.Second)
		require.NoError(t, err)
		defer blk.Release()
	}

	_, err := s.ReadNext(context.Background(), time.Second)
	require.ErrorIs(t, err, domain.ErrResourceBusy)
	require.NoError(t, s.Stop())
}

func TestStop_CanRestart(t *testing.T) {
	cfg := domain.DefaultStreamConfig()
	p := newPool(t, 4, cfg)
	s := New("dmic0", Silence{}, WithPacing(0))
	require.NoError(t, s.Configure(cfg, p))

	for round := 0; round < 2; round++ {
		require.NoError(t, s.Start())
		blk, err := s.ReadNext(context.Background(), time.Second)
		require.NoError(t, err)
		require.NoError(t, blk.Release())
		require.NoError(t, s.Stop())
		require.Equal(t, 0, p.Outstanding())
	}
}

func TestReady(t *testing.T) {
	require.NoError(t, New("dmic0", nil).Ready())
	require.Error(t, New("dmic0", nil, Detached()).Ready())
}
