package camera

import (
	"fmt"
	"time"
)

// Fake is an in-memory Camera backing tests and the default `cpid serve`
// invocation when no real driver is wired (§9 "Camera abstraction").
type Fake struct {
	settings Settings
	closed   bool

	// Frame is the fixed payload every capture returns; tests can swap it
	// to check size/timestamp plumbing without real image data.
	Frame []byte
}

// NewFake constructs a Fake with default settings and a small placeholder
// payload standing in for a JPEG frame.
func NewFake() *Fake {
	return &Fake{
		settings: DefaultSettings(),
		Frame:    []byte("fake-jpeg-frame"),
	}
}

func (f *Fake) Configure(settings Settings) error {
	if f.closed {
		return fmt.Errorf("camera is closed")
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	f.settings = settings
	return nil
}

// Settings returns the camera's current configuration, for status
// reporting.
func (f *Fake) Settings() Settings {
	return f.settings
}

func (f *Fake) Capture(count int, useVideoPort bool, atTime *float64) ([]Frame, error) {
	if f.closed {
		return nil, fmt.Errorf("camera is closed")
	}

	if atTime != nil {
		wait := time.Until(time.Unix(0, int64(*atTime*float64(time.Second))))
		if wait > 0 {
			time.Sleep(wait)
		}
	}

	frames := make([]Frame, count)
	for i := range frames {
		frames[i] = Frame{
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
			Data:      append([]byte(nil), f.Frame...),
		}
	}

	return frames, nil
}

func (f *Fake) Blink(durationSeconds float64) error {
	if f.closed {
		return fmt.Errorf("camera is closed")
	}
	return nil
}

func (f *Fake) Close() error {
	f.closed = true
	return nil
}

var _ Camera = (*Fake)(nil)
