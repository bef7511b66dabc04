// Package camera defines the capability interface the server protocol
// handler drives: an opaque, injected collaborator never hard-depended on
// by the coordination core (§9 "Camera abstraction").
package camera

import (
	"fmt"
	"math/big"
)

// Settings is the server-side camera configuration record (§3 "Camera
// settings"), mutated in place by the RESOLUTION/FRAMERATE/AWB/EXPOSURE/
// ISO/METERING/LEVELS/FLIP/AGC/DENOISE/QUALITY commands.
type Settings struct {
	Width, Height int

	// Framerate is a rational frames-per-second value, 1-90.
	Framerate *big.Rat

	AWBMode       string
	AWBRed        *big.Rat
	AWBBlue       *big.Rat
	AWBHasGains   bool

	ExposureMode  string
	ExposureSpeed float64 // milliseconds
	HasSpeed      bool

	ISO int

	MeteringMode string

	Brightness, Contrast, Saturation int
	ExposureComp                     int

	FlipH, FlipV bool

	AGCMode string

	Denoise bool

	// Quality is the JPEG capture quality, a persistent setting (§
	// SUPPLEMENTED FEATURES), not a per-capture argument.
	Quality int
}

// DefaultSettings mirrors the original implementation's camera defaults.
func DefaultSettings() Settings {
	return Settings{
		Width: 1280, Height: 720,
		Framerate:    big.NewRat(30, 1),
		AWBMode:      "auto",
		ExposureMode: "auto",
		ISO:          0,
		MeteringMode: "average",
		AGCMode:      "auto",
		Quality:      85,
	}
}

// Validate enforces the cross-field invariants named in §3: exposure speed
// bounded by the fixed framerate, gains/speed ignored unless the
// corresponding mode is fixed.
func (s Settings) Validate() error {
	if s.Framerate != nil {
		f, _ := new(big.Rat).SetString("1")
		if s.Framerate.Cmp(f) < 0 {
			return fmt.Errorf("framerate must be at least 1")
		}
		ninety := big.NewRat(90, 1)
		if s.Framerate.Cmp(ninety) > 0 {
			return fmt.Errorf("framerate must be at most 90")
		}
	}

	if s.HasSpeed && s.ExposureMode == "off" && s.Framerate != nil {
		maxSpeed := new(big.Rat).Quo(big.NewRat(1000, 1), s.Framerate)
		maxF, _ := maxSpeed.Float64()
		if s.ExposureSpeed > maxF {
			return fmt.Errorf("exposure speed %.3fms exceeds 1000/framerate (%.3fms)", s.ExposureSpeed, maxF)
		}
	}

	if s.AWBHasGains {
		for _, g := range []*big.Rat{s.AWBRed, s.AWBBlue} {
			f, _ := g.Float64()
			if f < 0.0 || f > 8.0 {
				return fmt.Errorf("AWB gains must be within [0.0, 8.0]")
			}
		}
	}

	if s.ISO != 0 && (s.ISO < 0 || s.ISO > 1600) {
		return fmt.Errorf("ISO must be 0 (auto) or within [0, 1600]")
	}

	if s.Brightness < 0 || s.Brightness > 100 {
		return fmt.Errorf("brightness must be within [0, 100]")
	}
	if s.Contrast < -100 || s.Contrast > 100 {
		return fmt.Errorf("contrast must be within [-100, 100]")
	}
	if s.Saturation < -100 || s.Saturation > 100 {
		return fmt.Errorf("saturation must be within [-100, 100]")
	}
	if s.ExposureComp < -24 || s.ExposureComp > 24 {
		return fmt.Errorf("exposure compensation must be within [-24, 24]")
	}

	return nil
}

// Frame is one captured image: its timestamp and encoded bytes.
type Frame struct {
	Timestamp float64
	Data      []byte
}

// Camera is the capability the server brokers commands against. Real
// hardware access and the interactive shell stay out of scope (§1); this
// interface is the seam a real driver or a fake plugs into.
type Camera interface {
	// Configure applies settings, returning an error if the driver rejects
	// them (invalid mode string, unsupported resolution, etc).
	Configure(settings Settings) error

	// Capture takes count frames, optionally using the GPU's video port
	// (faster, lower quality) and optionally waiting until atTime (a UNIX
	// timestamp) before the first frame.
	Capture(count int, useVideoPort bool, atTime *float64) ([]Frame, error)

	// Blink pulses the camera's activity LED for the given duration, in
	// seconds.
	Blink(durationSeconds float64) error

	// Close releases the underlying hardware handle.
	Close() error
}
