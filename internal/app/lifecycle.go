package app

import (
	"errors"
	"sync"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
)

// ErrInvalidTransition is returned when a phase change is not permitted.
var ErrInvalidTransition = errors.New("hwv: invalid phase transition")

// transitions lists the phases reachable from each phase.
var transitions = map[domain.Phase][]domain.Phase{
	domain.PhaseIdle:        {domain.PhaseResuming},
	domain.PhaseResuming:    {domain.PhaseErasing, domain.PhaseError},
	domain.PhaseErasing:     {domain.PhaseCapturing, domain.PhaseError},
	domain.PhaseCapturing:   {domain.PhaseStopping, domain.PhaseError},
	domain.PhaseStopping:    {domain.PhaseReadingBack, domain.PhaseSuspending, domain.PhaseError},
	domain.PhaseReadingBack: {domain.PhaseSuspending, domain.PhaseError},
	domain.PhaseSuspending:  {domain.PhaseIdle},
	// Error always drains through Stopping, or straight to Suspending once
	// the source has already been stopped.
	domain.PhaseError: {domain.PhaseStopping, domain.PhaseSuspending},
}

// Lifecycle manages the phase state machine of the capture pipeline.
type Lifecycle struct {
	mu       sync.RWMutex
	phase    domain.Phase
	logger   ports.Logger
	observer ports.SessionObserver
}

// NewLifecycle creates a lifecycle in PhaseIdle.
func NewLifecycle(logger ports.Logger, observer ports.SessionObserver) *Lifecycle {
	return &Lifecycle{
		phase:    domain.PhaseIdle,
		logger:   logger,
		observer: observer,
	}
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() domain.Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// Busy reports whether a session is in flight.
func (l *Lifecycle) Busy() bool {
	return l.Phase() != domain.PhaseIdle
}

// Begin atomically moves Idle to Resuming.
// Returns false if a session is already in flight.
func (l *Lifecycle) Begin(reason string) bool {
	return l.TransitionTo(domain.PhaseResuming, reason) == nil
}

// TransitionTo attempts to transition to a new phase.
// Returns ErrInvalidTransition if the transition is not valid.
func (l *Lifecycle) TransitionTo(next domain.Phase, reason string) error {
	l.mu.Lock()
	prev := l.phase
	if !allowed(prev, next) {
		l.mu.Unlock()
		return ErrInvalidTransition
	}
	l.phase = next
	l.mu.Unlock()

	// Emit event outside of lock
	if l.observer != nil {
		l.observer.OnPhaseChange(prev, next, reason)
	}

	l.logger.Debug("phase transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)

	return nil
}

func allowed(from, to domain.Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
