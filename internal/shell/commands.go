// Package shell implements the hwv board shell: the "hwv mic" and
// "hwv flash" command groups, either interactive or one-shot.
package shell

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
	"github.com/bft-labs/hwv/internal/report"
)

// Recorder is the capture service the shell drives.
type Recorder interface {
	Capture(ctx context.Context, seconds int) (domain.Recording, error)
	Erase() (offset, size int64, err error)
	Sink() ports.StorageSink
	Source() ports.CaptureSource
}

// MicCapture runs "mic capture [seconds]". On success it writes the framed
// sample dump; on failure the single error line.
func MicCapture(ctx context.Context, w io.Writer, rec Recorder, args []string) error {
	seconds, err := parseSeconds(args)
	if err != nil {
		err = &domain.StageError{Op: "capture", Err: err}
		_ = report.WriteError(w, err)
		return err
	}

	recording, err := rec.Capture(ctx, seconds)
	if err != nil {
		_ = report.WriteError(w, err)
		return err
	}
	return report.WriteDump(w, recording)
}

func parseSeconds(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration %q: %w", args[0], domain.ErrConfiguration)
	}
	return n, nil
}

// FlashInfo runs "flash info".
func FlashInfo(w io.Writer, rec Recorder) error {
	sink := rec.Sink()
	geom := sink.Geometry()
	power := "suspended"
	if sink.PowerState() == domain.PowerActive {
		power = "active"
	}
	_, err := fmt.Fprintf(w, "device: %s\nsize: %d\nerase unit: %d\nwrite block: %d\npower: %s\n",
		sink.Name(), geom.TotalSize, geom.EraseUnit, geom.WriteBlock, power)
	return err
}

// FlashErase runs "flash erase".
func FlashErase(w io.Writer, rec Recorder) error {
	offset, size, err := rec.Erase()
	if err != nil {
		_ = report.WriteError(w, err)
		return err
	}
	_, err = fmt.Fprintf(w, "erased %d bytes at 0x%x\n", size, offset)
	return err
}
