package halrhi

import "errors"

// Package errors.
var (
	// ErrNilDevice is returned when New receives a nil device or queue.
	ErrNilDevice = errors.New("halrhi: nil device or queue")

	// ErrNoHAL is returned by NewFromProvider when the provider does not
	// expose HAL objects.
	ErrNoHAL = errors.New("halrhi: provider does not expose HAL types")

	// ErrNoBackend is returned by Open when the requested HAL backend was
	// not linked into the binary.
	ErrNoBackend = errors.New("halrhi: HAL backend not registered")

	// ErrNoAdapter is returned by Open when the backend reports no adapters.
	ErrNoAdapter = errors.New("halrhi: no GPU adapters found")

	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("halrhi: resource released")

	// ErrNotHostVisible is returned by Buffer.Read for GPU-only buffers.
	ErrNotHostVisible = errors.New("halrhi: buffer is not host visible")

	// ErrRecording is returned by Submit while the command buffer is still
	// between Begin and End.
	ErrRecording = errors.New("halrhi: command buffer is still recording")
)
