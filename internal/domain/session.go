package domain

import "time"

// Phase is the lifecycle phase of the capture pipeline.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResuming
	PhaseErasing
	PhaseCapturing
	PhaseStopping
	PhaseReadingBack
	PhaseSuspending
	PhaseError
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseResuming:
		return "Resuming"
	case PhaseErasing:
		return "Erasing"
	case PhaseCapturing:
		return "Capturing"
	case PhaseStopping:
		return "Stopping"
	case PhaseReadingBack:
		return "ReadingBack"
	case PhaseSuspending:
		return "Suspending"
	case PhaseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Stage returns the lowercase stage name used in error lines.
func (p Phase) Stage() string {
	switch p {
	case PhaseResuming:
		return "resume"
	case PhaseErasing:
		return "erase"
	case PhaseCapturing:
		return "capture"
	case PhaseStopping:
		return "stop"
	case PhaseReadingBack:
		return "read back"
	case PhaseSuspending:
		return "suspend"
	default:
		return "session"
	}
}

// PowerState is the power domain state of the storage device.
type PowerState int

const (
	PowerSuspended PowerState = iota
	PowerActive
)

// String returns a human-readable representation of the power state.
func (s PowerState) String() string {
	if s == PowerActive {
		return "Active"
	}
	return "Suspended"
}

// Region is the erased span of storage a session writes into.
type Region struct {
	Offset int64
	Size   int64
}

// End returns the first offset past the region.
func (r Region) End() int64 {
	return r.Offset + r.Size
}

// Fits reports whether n bytes written at off stay inside the region.
func (r Region) Fits(off int64, n int) bool {
	return off >= r.Offset && off+int64(n) <= r.End()
}

// Session is the transient state of one capture-and-persist invocation.
type Session struct {
	Seconds    int
	Iterations int
	BlockSize  int
	Region     Region
	Offset     int64
	Written    int
	Phase      Phase
	StartedAt  time.Time

	err error
}

// NewSession derives the iteration count for seconds from the stream format.
func NewSession(seconds int, cfg StreamConfig) *Session {
	if seconds <= 0 {
		seconds = 1
	}
	return &Session{
		Seconds:    seconds,
		Iterations: cfg.Iterations(seconds),
		BlockSize:  cfg.BlockSize(),
		StartedAt:  time.Now(),
	}
}

// ExpectedBytes returns the number of bytes a successful session persists.
func (s *Session) ExpectedBytes() int64 {
	return int64(s.Iterations) * int64(s.BlockSize)
}

// Advance moves the write offset past a block of n bytes.
func (s *Session) Advance(n int) {
	s.Offset += int64(n)
	s.Written++
}

// Fail records err as the session error unless one is already recorded.
// It returns the authoritative (first) error.
func (s *Session) Fail(phase Phase, op string, err error) error {
	if s.err == nil {
		s.err = &StageError{Phase: phase, Op: op, Err: err}
	}
	return s.err
}

// Err returns the first error recorded on the session.
func (s *Session) Err() error {
	return s.err
}

// Failed reports whether an error has been recorded.
func (s *Session) Failed() bool {
	return s.err != nil
}
