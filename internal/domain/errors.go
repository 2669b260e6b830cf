package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent the failure taxonomy of a capture session.
// They are returned by the public API and can be checked with errors.Is.
var (
	// ErrDeviceNotReady is returned when the microphone or storage device is
	// absent. It is reported once, when the pipeline is constructed.
	ErrDeviceNotReady = errors.New("hwv: device not ready")

	// ErrConfiguration is returned when the peripheral rejects the requested
	// sample format.
	ErrConfiguration = errors.New("hwv: configuration rejected")

	// ErrTimeout is returned when no block is delivered within the read timeout.
	ErrTimeout = errors.New("hwv: timed out")

	// ErrIO is returned for bus or storage transfer failures.
	ErrIO = errors.New("hwv: i/o error")

	// ErrResourceBusy is returned when the block pool stays exhausted past its timeout.
	ErrResourceBusy = errors.New("hwv: resource busy")

	// ErrSessionInProgress is returned when Run is called while a session is in flight.
	ErrSessionInProgress = errors.New("hwv: session in progress")

	// ErrOutOfSpace is returned when a write would leave the erased region.
	ErrOutOfSpace = errors.New("hwv: out of space")

	// ErrVerification is returned when read-back data does not match what was written.
	ErrVerification = errors.New("hwv: verification failed")
)

// errno-style codes reported to the shell, matching the firmware's return values.
var codes = []struct {
	err  error
	code int
}{
	{ErrDeviceNotReady, -19},
	{ErrConfiguration, -22},
	{ErrTimeout, -11},
	{ErrIO, -5},
	{ErrResourceBusy, -12},
	{ErrSessionInProgress, -16},
	{ErrOutOfSpace, -28},
	{ErrVerification, -74},
}

// Code returns the negative error code for err.
// Returns 0 for nil and the ErrIO code for errors outside the taxonomy.
func Code(err error) int {
	if err == nil {
		return 0
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return -5
}

// StageError records the phase and operation in which a session failed.
type StageError struct {
	Phase Phase
	Op    string
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation(), e.Err)
}

// Operation returns the failing operation, falling back to the stage name.
func (e *StageError) Operation() string {
	if e.Op != "" {
		return e.Op
	}
	return e.Phase.Stage()
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Code returns the negative error code of the underlying error.
func (e *StageError) Code() int {
	return Code(e.Err)
}
