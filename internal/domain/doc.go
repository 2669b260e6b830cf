// Package domain contains the core domain entities and value objects for hwv.
//
// This package represents the innermost layer of the architecture. It has
// no dependencies on infrastructure concerns (devices, file system, logging)
// and contains only the capture model and its rules.
//
// # Entities
//
//   - [StreamConfig]: PCM format, PDM clock constraints and channel map
//   - [Session]: Transient state of a single capture-and-persist invocation
//   - [Region]: The erased span of storage a session writes into
//   - [Recording]: The verified result of a successful session
//
// # Errors
//
// Every failure maps onto one of the sentinel errors in errors.go, and
// [Code] converts it to the negative errno-style value printed by the shell.
package domain
