// Package flash emulates a NOR flash device behind a power domain.
//
// Erased bytes read as 0xFF and programming can only clear bits, so every
// write must target bytes erased since they were last programmed. The
// emulator is backed either by memory or by a persistent image file.
package flash

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bft-labs/hwv/internal/domain"
	"github.com/bft-labs/hwv/internal/ports"
)

// ErasedByte is the value of an erased flash byte.
const ErasedByte = 0xFF

// Flash errors wrap domain.ErrIO so callers can classify them either way.
var (
	ErrSuspended  = fmt.Errorf("flash: power domain suspended: %w", domain.ErrIO)
	ErrOutOfRange = fmt.Errorf("flash: access out of range: %w", domain.ErrIO)
	ErrMisaligned = fmt.Errorf("flash: misaligned access: %w", domain.ErrIO)
	ErrNotErased  = fmt.Errorf("flash: program over unerased bytes: %w", domain.ErrIO)
	ErrClosed     = fmt.Errorf("flash: device closed: %w", domain.ErrDeviceNotReady)
)

// Default geometry: a 16 MiB part erased in 2 MiB blocks, programmed in words.
const (
	DefaultTotalSize  = 16 << 20
	DefaultEraseUnit  = 2 << 20
	DefaultWriteBlock = 4
)

// DefaultGeometry returns the default device layout.
func DefaultGeometry() ports.Geometry {
	return ports.Geometry{
		TotalSize:  DefaultTotalSize,
		EraseUnit:  DefaultEraseUnit,
		WriteBlock: DefaultWriteBlock,
	}
}

// Medium is the backing store of a flash device.
type Medium interface {
	io.ReaderAt
	io.WriterAt
}

// Stats counts operations since the device was opened.
type Stats struct {
	Erases       int
	Writes       int
	BytesWritten int64
	Reads        int
}

// Device implements ports.StorageSink with NOR flash semantics.
type Device struct {
	mu     sync.Mutex
	name   string
	geom   ports.Geometry
	medium Medium
	closer io.Closer
	power  domain.PowerState
	stats  Stats
}

// NewMemory creates an erased in-memory device.
func NewMemory(name string, geom ports.Geometry) (*Device, error) {
	if err := validateGeometry(geom); err != nil {
		return nil, err
	}
	buf := make(memory, geom.TotalSize)
	for i := range buf {
		buf[i] = ErasedByte
	}
	return &Device{name: name, geom: geom, medium: buf}, nil
}

// OpenImage opens the flash image at path, creating an erased image if it
// does not exist. An existing image must match the geometry's total size.
func OpenImage(name, path string, geom ports.Geometry) (*Device, error) {
	if err := validateGeometry(geom); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat flash image: %w", err)
	}

	switch info.Size() {
	case 0:
		if err := fill(f, 0, geom.TotalSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialize flash image: %w", err)
		}
	case geom.TotalSize:
	default:
		f.Close()
		return nil, fmt.Errorf("flash image %s is %d bytes, geometry expects %d", path, info.Size(), geom.TotalSize)
	}

	return &Device{name: name, geom: geom, medium: f, closer: f}, nil
}

// Close releases the backing image. The device is not ready afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.medium = nil
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Ready returns nil while the backing medium is open.
func (d *Device) Ready() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.medium == nil {
		return ErrClosed
	}
	return nil
}

// PowerResume activates the power domain. Resuming an active device is a no-op.
func (d *Device) PowerResume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.medium == nil {
		return ErrClosed
	}
	d.power = domain.PowerActive
	return nil
}

// PowerSuspend suspends the power domain. Suspending a suspended device is a no-op.
func (d *Device) PowerSuspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.medium == nil {
		return ErrClosed
	}
	d.power = domain.PowerSuspended
	return nil
}

// PowerState returns the current power domain state.
func (d *Device) PowerState() domain.PowerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power
}

// Geometry returns the device layout.
func (d *Device) Geometry() ports.Geometry {
	return d.geom
}

// Stats returns operation counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// RegionSize returns the size of the erase unit that starts at offset.
func (d *Device) RegionSize(offset int64) (int64, error) {
	if offset < 0 || offset >= d.geom.TotalSize {
		return 0, fmt.Errorf("region at %d: %w", offset, ErrOutOfRange)
	}
	if offset%d.geom.EraseUnit != 0 {
		return 0, fmt.Errorf("region at %d: %w", offset, ErrMisaligned)
	}
	return d.geom.EraseUnit, nil
}

// Erase resets [offset, offset+size) to ErasedByte. Both must be aligned to
// the erase unit.
func (d *Device) Erase(offset, size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(offset, size); err != nil {
		return fmt.Errorf("erase %d+%d: %w", offset, size, err)
	}
	if offset%d.geom.EraseUnit != 0 || size%d.geom.EraseUnit != 0 {
		return fmt.Errorf("erase %d+%d: %w", offset, size, ErrMisaligned)
	}
	if err := fill(d.medium, offset, size); err != nil {
		return fmt.Errorf("erase %d+%d: %v: %w", offset, size, err, domain.ErrIO)
	}
	d.stats.Erases++
	return nil
}

// Write programs p at offset. The range must be aligned to the write block
// and fully erased.
func (d *Device) Write(offset int64, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := int64(len(p))
	if err := d.check(offset, n); err != nil {
		return fmt.Errorf("write %d+%d: %w", offset, n, err)
	}
	if offset%d.geom.WriteBlock != 0 || n%d.geom.WriteBlock != 0 {
		return fmt.Errorf("write %d+%d: %w", offset, n, ErrMisaligned)
	}

	current := make([]byte, n)
	if _, err := d.medium.ReadAt(current, offset); err != nil {
		return fmt.Errorf("write %d+%d: %v: %w", offset, n, err, domain.ErrIO)
	}
	for i, b := range p {
		if current[i]&b != b {
			return fmt.Errorf("write %d+%d: byte %d: %w", offset, n, offset+int64(i), ErrNotErased)
		}
	}
	if _, err := d.medium.WriteAt(p, offset); err != nil {
		return fmt.Errorf("write %d+%d: %v: %w", offset, n, err, domain.ErrIO)
	}
	d.stats.Writes++
	d.stats.BytesWritten += n
	return nil
}

// Read fills p with the bytes at offset.
func (d *Device) Read(offset int64, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := int64(len(p))
	if err := d.check(offset, n); err != nil {
		return fmt.Errorf("read %d+%d: %w", offset, n, err)
	}
	if _, err := d.medium.ReadAt(p, offset); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read %d+%d: %v: %w", offset, n, err, domain.ErrIO)
	}
	d.stats.Reads++
	return nil
}

// check validates state and bounds. Callers hold d.mu.
func (d *Device) check(offset, n int64) error {
	if d.medium == nil {
		return ErrClosed
	}
	if d.power != domain.PowerActive {
		return ErrSuspended
	}
	if offset < 0 || n < 0 || offset+n > d.geom.TotalSize {
		return ErrOutOfRange
	}
	return nil
}

func validateGeometry(g ports.Geometry) error {
	if g.TotalSize <= 0 || g.EraseUnit <= 0 || g.WriteBlock <= 0 {
		return fmt.Errorf("flash: geometry sizes must be positive: %+v", g)
	}
	if g.TotalSize%g.EraseUnit != 0 {
		return fmt.Errorf("flash: total size %d is not a multiple of erase unit %d", g.TotalSize, g.EraseUnit)
	}
	if g.EraseUnit%g.WriteBlock != 0 {
		return fmt.Errorf("flash: erase unit %d is not a multiple of write block %d", g.EraseUnit, g.WriteBlock)
	}
	return nil
}

// fill writes ErasedByte over [offset, offset+size) in 64 KiB chunks.
func fill(w io.WriterAt, offset, size int64) error {
	chunk := make([]byte, 64<<10)
	for i := range chunk {
		chunk[i] = ErasedByte
	}
	for size > 0 {
		n := int64(len(chunk))
		if n > size {
			n = size
		}
		if _, err := w.WriteAt(chunk[:n], offset); err != nil {
			return err
		}
		offset += n
		size -= n
	}
	return nil
}

// memory is an in-memory Medium.
type memory []byte

func (m memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m)) {
		return 0, io.EOF
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m memory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m)) {
		return 0, io.ErrShortWrite
	}
	return copy(m[off:], p), nil
}

// Ensure Device implements ports.StorageSink.
var _ ports.StorageSink = (*Device)(nil)
