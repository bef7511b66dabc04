package server

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/compoundpi/compoundpi/camera"
	"github.com/compoundpi/compoundpi/capture"
	"github.com/compoundpi/compoundpi/protocol"
)

// handlerFunc executes one already-decoded, already-dispatched command
// against the server's state, returning the response payload to cache and
// send (§9 "verb dispatch is a table").
type handlerFunc func(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte

var handlers = map[protocol.Verb]handlerFunc{
	protocol.STATUS:     handleStatus,
	protocol.RESOLUTION: handleResolution,
	protocol.FRAMERATE:  handleFramerate,
	protocol.AWB:        handleAWB,
	protocol.EXPOSURE:   handleExposure,
	protocol.ISO:        handleISO,
	protocol.METERING:   handleMetering,
	protocol.LEVELS:     handleLevels,
	protocol.FLIP:       handleFlip,
	protocol.AGC:        handleAGC,
	protocol.DENOISE:    handleDenoise,
	protocol.QUALITY:    handleQuality,
	protocol.BLINK:      handleBlink,
	protocol.CAPTURE:    handleCapture,
	protocol.LIST:       handleList,
	protocol.CLEAR:      handleClear,
	protocol.SEND:       handleSend,
}

func okResponse(seq uint32, lines ...string) []byte {
	var buf bytes.Buffer
	_ = protocol.WriteOKLines(&buf, seq, lines...)
	return buf.Bytes()
}

func errResponse(seq uint32, err error) []byte {
	var buf bytes.Buffer
	_ = protocol.WriteError(&buf, seq, err.Error())
	return buf.Bytes()
}

func handleStatus(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.StatusCommand)
	s := h.settings()

	info := protocol.StatusInfo{
		Width:         s.Width,
		Height:        s.Height,
		Framerate:     s.Framerate,
		AWBMode:       s.AWBMode,
		AWBRed:        nonNilRat(s.AWBRed),
		AWBBlue:       nonNilRat(s.AWBBlue),
		ExposureMode:  s.ExposureMode,
		ExposureSpeed: s.ExposureSpeed,
		ExposureComp:  s.ExposureComp,
		ISO:           s.ISO,
		MeteringMode:  s.MeteringMode,
		Brightness:    s.Brightness,
		Contrast:      s.Contrast,
		Saturation:    s.Saturation,
		FlipH:         s.FlipH,
		FlipV:         s.FlipV,
		Timestamp:     float64(time.Now().UnixNano()) / 1e9,
		Images:        h.store.Len(),
	}

	return okResponse(c.Seq(), protocol.EncodeStatus(info)...)
}

func nonNilRat(r *big.Rat) *big.Rat {
	if r == nil {
		return big.NewRat(0, 1)
	}
	return r
}

func handleResolution(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.ResolutionCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("%w: resolution must be positive", ErrArgument)
		}
		s.Width, s.Height = c.Width, c.Height
		return nil
	})
}

func handleFramerate(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.FramerateCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.Framerate = c.Rate
		return nil
	})
}

func handleAWB(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.AwbCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.AWBMode = c.Mode
		s.AWBHasGains = c.HasGains
		s.AWBRed, s.AWBBlue = c.Red, c.Blue
		return nil
	})
}

func handleExposure(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.ExposureCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.ExposureMode = c.Mode
		s.HasSpeed = c.HasSpeed
		s.ExposureSpeed = c.Speed
		return nil
	})
}

func handleISO(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.IsoCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.ISO = c.ISO
		return nil
	})
}

func handleMetering(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.MeteringCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.MeteringMode = c.Mode
		return nil
	})
}

func handleLevels(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.LevelsCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.Brightness, s.Contrast, s.Saturation, s.ExposureComp = c.Brightness, c.Contrast, c.Saturation, c.Exposure
		return nil
	})
}

func handleFlip(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.FlipCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.FlipH, s.FlipV = c.Horizontal, c.Vertical
		return nil
	})
}

func handleAGC(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.AgcCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.AGCMode = c.Mode
		return nil
	})
}

func handleDenoise(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.DenoiseCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		s.Denoise = c.Enabled
		return nil
	})
}

func handleQuality(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.QualityCommand)

	return h.mutate(c.Seq(), func(s *camera.Settings) error {
		if c.Quality < 1 || c.Quality > 100 {
			return fmt.Errorf("%w: quality must be within [1, 100]", ErrArgument)
		}
		s.Quality = c.Quality
		return nil
	})
}

func handleBlink(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.BlinkCommand)

	if err := h.cam.Blink(5); err != nil {
		return errResponse(c.Seq(), fmt.Errorf("%w: %s", ErrCamera, err))
	}

	return okResponse(c.Seq())
}

func handleCapture(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.CaptureCommand)

	if c.Count < 1 {
		return errResponse(c.Seq(), fmt.Errorf("%w: count must be at least 1", ErrArgument))
	}

	if c.Sync != nil {
		if err := capture.WaitUntil(*c.Sync); err != nil {
			return errResponse(c.Seq(), fmt.Errorf("%w: %s", ErrArgument, err))
		}
	}

	frames, err := h.cam.Capture(c.Count, c.VideoPort != 0, nil)
	if err != nil {
		return errResponse(c.Seq(), fmt.Errorf("%w: %s", ErrCamera, err))
	}

	for _, f := range frames {
		h.store.Append(capture.Image{Timestamp: f.Timestamp, Data: f.Data})
	}

	// OK is emitted only after every image has been captured and stored
	// (§9 open question), so a following LIST reflects them.
	return okResponse(c.Seq())
}

func handleList(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.ListCommand)

	images := h.store.All()
	entries := make([]protocol.ListEntry, len(images))
	for i, img := range images {
		entries[i] = protocol.ListEntry{Index: i, Timestamp: img.Timestamp, Size: img.Size()}
	}

	return okResponse(c.Seq(), protocol.EncodeList(entries)...)
}

func handleClear(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.ClearCommand)

	h.store.Clear()

	return okResponse(c.Seq())
}

func handleSend(h *Handler, sess *Session, fromAddr string, cmd protocol.Command) []byte {
	c := cmd.(*protocol.SendCommand)

	img, ok := h.store.Get(c.Index)
	if !ok {
		return errResponse(c.Seq(), fmt.Errorf("%w: %d", ErrIndex, c.Index))
	}

	if err := h.pushImage(fromAddr, c.Port, img.Data); err != nil {
		return errResponse(c.Seq(), err)
	}

	return okResponse(c.Seq())
}
