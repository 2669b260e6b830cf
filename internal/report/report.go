// Package report renders capture results in the shell's line protocol and
// converts captured dumps back into audio files.
//
// A successful capture is a start marker line "S", one decimal line per
// signed 16-bit sample, and an end marker line "E". A failed capture is a
// single line "<stage> failed (<code>)".
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bft-labs/hwv/internal/domain"
)

// Line markers framing a sample dump.
const (
	StartMarker = "S"
	EndMarker   = "E"
)

var (
	// ErrNoDump is returned when the input holds no start marker.
	ErrNoDump = errors.New("report: no sample dump in input")

	// ErrTruncated is returned when the input ends before the end marker.
	ErrTruncated = errors.New("report: dump ends without end marker")
)

// WriteDump writes rec as a framed sample dump.
func WriteDump(w io.Writer, rec domain.Recording) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(StartMarker + "\n")
	var num []byte
	for i := 0; i < rec.SampleCount(); i++ {
		num = strconv.AppendInt(num[:0], int64(rec.Sample(i)), 10)
		num = append(num, '\n')
		bw.Write(num)
	}
	bw.WriteString(EndMarker + "\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("report: write dump: %w", err)
	}
	return nil
}

// WriteError writes the single failure line for err.
func WriteError(w io.Writer, err error) error {
	_, werr := fmt.Fprintln(w, ErrorLine(err))
	return werr
}

// ErrorLine formats err as "<stage> failed (<code>)".
func ErrorLine(err error) string {
	stage := "capture"
	var se *domain.StageError
	if errors.As(err, &se) {
		stage = se.Operation()
	}
	return fmt.Sprintf("%s failed (%d)", stage, domain.Code(err))
}

// ParseDump extracts the samples of the first framed dump in r. Lines before
// the start marker, such as the echoed command, are ignored.
func ParseDump(r io.Reader) ([]int16, error) {
	sc := bufio.NewScanner(r)
	started := false
	var samples []int16
	line := 0

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if !started {
			started = text == StartMarker
			continue
		}
		switch text {
		case EndMarker:
			return samples, nil
		case StartMarker, "":
			continue
		}
		v, err := strconv.ParseInt(text, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("report: line %d: bad sample %q: %w", line, text, err)
		}
		samples = append(samples, int16(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("report: read dump: %w", err)
	}
	if !started {
		return nil, ErrNoDump
	}
	return nil, ErrTruncated
}
