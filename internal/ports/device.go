package ports

// Device is a peripheral whose presence is negotiated once, when the
// pipeline is constructed.
type Device interface {
	// Name identifies the device in logs.
	Name() string

	// Ready returns nil if the device is present and usable.
	Ready() error
}
