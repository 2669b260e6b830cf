package ports

import (
	"time"

	"github.com/bft-labs/hwv/internal/domain"
)

// SessionObserver receives capture session events.
// Methods are called synchronously from the session goroutine and should
// return quickly.
type SessionObserver interface {
	// OnPhaseChange is called after every pipeline phase transition.
	OnPhaseChange(previous, current domain.Phase, reason string)

	// OnBlockWritten is called after a block is persisted.
	OnBlockWritten(offset int64, size int)

	// OnSessionEnd is called once per session with its outcome.
	OnSessionEnd(iterations int, bytes int64, duration time.Duration, err error)
}
