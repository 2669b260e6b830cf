package app

import (
	"sync"

	"github.com/bft-labs/hwv/internal/ports"
)

// poweredSink is a scoped hold on the sink's power domain.
// release suspends the domain exactly once, whether or not the resume
// succeeded.
type poweredSink struct {
	sink ports.StorageSink
	once sync.Once
	err  error
}

// acquirePower resumes the sink's power domain. The returned handle is never
// nil and must be released even when err is non-nil.
func acquirePower(sink ports.StorageSink) (*poweredSink, error) {
	return &poweredSink{sink: sink}, sink.PowerResume()
}

// release suspends the power domain. Later calls return the first result.
func (p *poweredSink) release() error {
	p.once.Do(func() {
		p.err = p.sink.PowerSuspend()
	})
	return p.err
}
