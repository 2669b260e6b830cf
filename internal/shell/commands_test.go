package shell

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/hwv/internal/adapters/dmic"
	"github.com/bft-labs/hwv/internal/adapters/flash"
	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
)

type fakeRecorder struct {
	seconds    int
	captureErr error
	eraseErr   error
	samples    []int16
	sink       *flash.Device
}

func (f *fakeRecorder) Capture(ctx context.Context, seconds int) (domain.Recording, error) {
	f.seconds = seconds
	if f.captureErr != nil {
		return domain.Recording{}, f.captureErr
	}
	data := make([]byte, len(f.samples)*2)
	for i, s := range f.samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return domain.Recording{Data: data}, nil
}

func (f *fakeRecorder) Erase() (int64, int64, error) {
	if f.eraseErr != nil {
		return 0, 0, f.eraseErr
	}
	return 0, 2 << 20, nil
}

func (f *fakeRecorder) Sink() ports.StorageSink     { return f.sink }
func (f *fakeRecorder) Source() ports.CaptureSource { return dmic.New("dmic0", nil) }

func newFakeRecorder(t *testing.T) *fakeRecorder {
	t.Helper()
	dev, err := flash.NewMemory("flash0", flash.DefaultGeometry())
	require.NoError(t, err)
	return &fakeRecorder{sink: dev}
}

func TestMicCapture_PrintsDump(t *testing.T) {
	rec := newFakeRecorder(t)
	rec.samples = []int16{1, -1, 300}

	var out bytes.Buffer
	require.NoError(t, MicCapture(context.Background(), &out, rec, nil))
	require.Equal(t, "S\n1\n-1\n300\nE\n", out.String())
	require.Equal(t, 1, rec.seconds, "duration defaults to one second")
}

func TestMicCapture_Duration(t *testing.T) {
	rec := newFakeRecorder(t)

	var out bytes.Buffer
	require.NoError(t, MicCapture(context.Background(), &out, rec, []string{"5"}))
	require.Equal(t, 5, rec.seconds)

	for _, arg := range []string{"five", "0", "-3"} {
		out.Reset()
		rec.seconds = 0
		err := MicCapture(context.Background(), &out, rec, []string{arg})
		require.ErrorIs(t, err, domain.ErrConfiguration, arg)
		require.Equal(t, "capture failed (-22)\n", out.String(), arg)
		require.Zero(t, rec.seconds, "no capture for %q", arg)
	}
}

func TestMicCapture_PrintsErrorLineOnly(t *testing.T) {
	rec := newFakeRecorder(t)
	rec.captureErr = &domain.StageError{Phase: domain.PhaseCapturing, Op: "read", Err: domain.ErrTimeout}

	var out bytes.Buffer
	err := MicCapture(context.Background(), &out, rec, nil)
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.Equal(t, "read failed (-11)\n", out.String())
}

func TestFlashInfo(t *testing.T) {
	rec := newFakeRecorder(t)

	var out bytes.Buffer
	require.NoError(t, FlashInfo(&out, rec))
	require.Equal(t, fmt.Sprintf("device: flash0\nsize: %d\nerase unit: %d\nwrite block: 4\npower: suspended\n",
		16<<20, 2<<20), out.String())

	require.NoError(t, rec.sink.PowerResume())
	out.Reset()
	require.NoError(t, FlashInfo(&out, rec))
	require.True(t, strings.HasSuffix(out.String(), "power: active\n"))
}

func TestFlashErase(t *testing.T) {
	rec := newFakeRecorder(t)

	var out bytes.Buffer
	require.NoError(t, FlashErase(&out, rec))
	require.Equal(t, "erased 2097152 bytes at 0x0\n", out.String())

	rec.eraseErr = &domain.StageError{Phase: domain.PhaseErasing, Err: domain.ErrIO}
	out.Reset()
	require.Error(t, FlashErase(&out, rec))
	require.Equal(t, "erase failed (-5)\n", out.String())
}
