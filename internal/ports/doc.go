// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the capture pipeline and the outside
// world. They define what the pipeline needs from the devices without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [CaptureSource]: Configures, starts, reads and stops the microphone
//   - [StorageSink]: Power, erase, write and read operations on storage
//   - [BlockAllocator]: The bounded block pool a source fills
//   - [SessionObserver]: Receives session events (metrics, tests)
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with a DMIC
// simulator, a NOR flash emulator, zerolog and Prometheus.
package ports
