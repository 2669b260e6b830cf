package ports

import "github.com/bft-labs/hwv/internal/domain"

// Geometry describes the layout of a storage device.
type Geometry struct {
	// TotalSize is the device capacity in bytes.
	TotalSize int64

	// EraseUnit is the size of the smallest erasable region.
	EraseUnit int64

	// WriteBlock is the program alignment in bytes.
	WriteBlock int64
}

// StorageSink abstracts raw non-volatile storage with an explicit power domain.
// Erase, Write and Read require the power domain to be active.
type StorageSink interface {
	Device

	// PowerResume brings the power domain to Active.
	PowerResume() error

	// PowerSuspend brings the power domain to Suspended.
	PowerSuspend() error

	// PowerState returns the current power domain state.
	PowerState() domain.PowerState

	// Geometry returns the device layout.
	Geometry() Geometry

	// RegionSize returns the size of the erasable region starting at offset.
	RegionSize(offset int64) (int64, error)

	// Erase resets size bytes at offset to the erased state.
	Erase(offset, size int64) error

	// Write programs p at offset. Offsets must increase within a session.
	Write(offset int64, p []byte) error

	// Read fills p with the bytes stored at offset.
	Read(offset int64, p []byte) error
}
