package capture

import (
	"fmt"
	"time"
)

// WaitUntil blocks until the wall clock reaches the UNIX timestamp atTime,
// implementing CAPTURE's optional sync argument (§4.4). It returns an error
// if atTime is not strictly in the future at the moment of the call, per
// the handler's validation rule ("must be in the future — otherwise
// ERROR").
//
// Meaningful sync semantics depend on the client and every server sharing
// a common clock; this package does not synchronise clocks itself. NTP (or
// an equivalent) running on every peer is a prerequisite the operator must
// satisfy, exactly as the original implementation's CAPTURE docstring
// notes.
func WaitUntil(atTime float64) error {
	target := unixToTime(atTime)
	now := time.Now()

	if !target.After(now) {
		return fmt.Errorf("sync timestamp %.6f is not in the future", atTime)
	}

	time.Sleep(target.Sub(now))
	return nil
}

func unixToTime(ts float64) time.Time {
	secs := int64(ts)
	nanos := int64((ts - float64(secs)) * 1e9)
	return time.Unix(secs, nanos)
}
