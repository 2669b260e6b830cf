package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

// mockObserver records session events for testing.
type mockObserver struct {
	mu      sync.Mutex
	changes []phaseChange
	writes  []int64
	ends    []sessionEnd
}

type phaseChange struct {
	previous domain.Phase
	current  domain.Phase
	reason   string
}

type sessionEnd struct {
	iterations int
	bytes      int64
	err        error
}

func (m *mockObserver) OnPhaseChange(previous, current domain.Phase, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, phaseChange{previous, current, reason})
}

func (m *mockObserver) OnBlockWritten(offset int64, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, offset)
}

func (m *mockObserver) OnSessionEnd(iterations int, bytes int64, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends = append(m.ends, sessionEnd{iterations, bytes, err})
}

func (m *mockObserver) Phases() []domain.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Phase, 0, len(m.changes))
	for _, c := range m.changes {
		out = append(out, c.current)
	}
	return out
}

func TestNewLifecycle(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	if l == nil {
		t.Fatal("NewLifecycle returned nil")
	}
	if l.Phase() != domain.PhaseIdle {
		t.Errorf("initial phase = %v, want Idle", l.Phase())
	}
	if l.Busy() {
		t.Error("new lifecycle reports busy")
	}
}

func TestLifecycle_SuccessPath(t *testing.T) {
	obs := &mockObserver{}
	l := NewLifecycle(&mockLogger{}, obs)

	path := []domain.Phase{
		domain.PhaseResuming,
		domain.PhaseErasing,
		domain.PhaseCapturing,
		domain.PhaseStopping,
		domain.PhaseReadingBack,
		domain.PhaseSuspending,
		domain.PhaseIdle,
	}
	for _, p := range path {
		if err := l.TransitionTo(p, "test"); err != nil {
			t.Fatalf("TransitionTo(%v) error = %v", p, err)
		}
	}

	got := obs.Phases()
	if len(got) != len(path) {
		t.Fatalf("observed %d transitions, want %d", len(got), len(path))
	}
	for i := range path {
		if got[i] != path[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], path[i])
		}
	}
}

func TestLifecycle_ErrorDrainsThroughCleanup(t *testing.T) {
	tests := []struct {
		name string
		from []domain.Phase
	}{
		{"from resuming", []domain.Phase{domain.PhaseResuming}},
		{"from erasing", []domain.Phase{domain.PhaseResuming, domain.PhaseErasing}},
		{"from capturing", []domain.Phase{domain.PhaseResuming, domain.PhaseErasing, domain.PhaseCapturing}},
		{"from reading back", []domain.Phase{
			domain.PhaseResuming, domain.PhaseErasing, domain.PhaseCapturing,
			domain.PhaseStopping, domain.PhaseReadingBack,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(&mockLogger{}, nil)
			for _, p := range tt.from {
				if err := l.TransitionTo(p, "setup"); err != nil {
					t.Fatalf("setup TransitionTo(%v) error = %v", p, err)
				}
			}
			if err := l.TransitionTo(domain.PhaseError, "failure"); err != nil {
				t.Fatalf("TransitionTo(Error) error = %v", err)
			}
			if err := l.TransitionTo(domain.PhaseIdle, "skip cleanup"); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Error -> Idle error = %v, want ErrInvalidTransition", err)
			}
			if err := l.TransitionTo(domain.PhaseSuspending, "cleanup"); err != nil {
				t.Fatalf("TransitionTo(Suspending) error = %v", err)
			}
			if err := l.TransitionTo(domain.PhaseIdle, "done"); err != nil {
				t.Fatalf("TransitionTo(Idle) error = %v", err)
			}
		})
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from domain.Phase
		to   domain.Phase
	}{
		{"idle to capturing", domain.PhaseIdle, domain.PhaseCapturing},
		{"idle to error", domain.PhaseIdle, domain.PhaseError},
		{"suspending to error", domain.PhaseSuspending, domain.PhaseError},
		{"capturing to reading back", domain.PhaseCapturing, domain.PhaseReadingBack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if allowed(tt.from, tt.to) {
				t.Errorf("allowed(%v, %v) = true, want false", tt.from, tt.to)
			}
		})
	}
}

func TestLifecycle_BeginRejectsConcurrentSession(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	if !l.Begin("first") {
		t.Fatal("first Begin returned false")
	}
	if l.Begin("second") {
		t.Error("second Begin returned true while session in flight")
	}
	if !l.Busy() {
		t.Error("Busy() = false during session")
	}
}

func TestLifecycle_ConcurrentBegin(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Begin("race") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("%d goroutines began a session, want 1", winners)
	}
}
