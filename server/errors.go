package server

import "errors"

// Sentinel causes for the server's error responses (§7: argument, stale,
// and camera errors).
var (
	// ErrArgument marks an out-of-range or otherwise invalid command
	// argument; state is left unchanged.
	ErrArgument = errors.New("invalid argument")

	// ErrIndex marks a SEND index outside the store's bounds.
	ErrIndex = errors.New("image index out of range")

	// ErrCamera marks a capture/configure failure reported by the camera
	// driver.
	ErrCamera = errors.New("camera error")

	// ErrStaleHello marks a HELLO whose timestamp did not strictly exceed
	// the session's previously accepted timestamp.
	ErrStaleHello = errors.New("stale hello")
)
