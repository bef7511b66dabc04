package protocol

import (
	"fmt"
	"math/big"
	"strings"
)

// Command is a single client->server instruction, tagged with the verb it
// carries. Concrete implementations hold the typed, validated arguments for
// that verb.
type Command interface {
	Seq() uint32
	Verb() Verb
	Encode() []byte
}

type base struct {
	seq uint32
}

func (b base) Seq() uint32 { return b.seq }

func encodeLine(seq uint32, verb Verb, args ...string) []byte {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, fmt.Sprintf("%d %s", seq, verb))
	line := parts[0]
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}

	return []byte(line + "\n")
}

type HelloCommand struct {
	base
	Timestamp float64
}

func NewHelloCommand(seq uint32, timestamp float64) *HelloCommand {
	return &HelloCommand{base: base{seq}, Timestamp: timestamp}
}

func (c *HelloCommand) Verb() Verb { return HELLO }
func (c *HelloCommand) Encode() []byte {
	return encodeLine(c.seq, HELLO, FormatTimestamp(c.Timestamp))
}

type AckCommand struct{ base }

func NewAckCommand(seq uint32) *AckCommand   { return &AckCommand{base{seq}} }
func (c *AckCommand) Verb() Verb             { return ACK }
func (c *AckCommand) Encode() []byte         { return encodeLine(c.seq, ACK) }

type StatusCommand struct{ base }

func NewStatusCommand(seq uint32) *StatusCommand { return &StatusCommand{base{seq}} }
func (c *StatusCommand) Verb() Verb              { return STATUS }
func (c *StatusCommand) Encode() []byte          { return encodeLine(c.seq, STATUS) }

type ResolutionCommand struct {
	base
	Width, Height int
}

func NewResolutionCommand(seq uint32, width, height int) *ResolutionCommand {
	return &ResolutionCommand{base{seq}, width, height}
}

func (c *ResolutionCommand) Verb() Verb { return RESOLUTION }
func (c *ResolutionCommand) Encode() []byte {
	return encodeLine(c.seq, RESOLUTION, fmt.Sprint(c.Width), fmt.Sprint(c.Height))
}

type FramerateCommand struct {
	base
	Rate *big.Rat
}

func NewFramerateCommand(seq uint32, rate *big.Rat) *FramerateCommand {
	return &FramerateCommand{base{seq}, rate}
}

func (c *FramerateCommand) Verb() Verb { return FRAMERATE }
func (c *FramerateCommand) Encode() []byte {
	return encodeLine(c.seq, FRAMERATE, FormatFraction(c.Rate))
}

type AwbCommand struct {
	base
	Mode       string
	Red, Blue  *big.Rat
	HasGains   bool
}

func NewAwbCommand(seq uint32, mode string, red, blue *big.Rat) *AwbCommand {
	return &AwbCommand{base{seq}, mode, red, blue, red != nil && blue != nil}
}

func (c *AwbCommand) Verb() Verb { return AWB }
func (c *AwbCommand) Encode() []byte {
	if c.HasGains {
		return encodeLine(c.seq, AWB, c.Mode, FormatFraction(c.Red), FormatFraction(c.Blue))
	}

	return encodeLine(c.seq, AWB, c.Mode)
}

type ExposureCommand struct {
	base
	Mode     string
	Speed    float64
	HasSpeed bool
}

func NewExposureCommand(seq uint32, mode string, speed float64, hasSpeed bool) *ExposureCommand {
	return &ExposureCommand{base{seq}, mode, speed, hasSpeed}
}

func (c *ExposureCommand) Verb() Verb { return EXPOSURE }
func (c *ExposureCommand) Encode() []byte {
	if c.HasSpeed {
		return encodeLine(c.seq, EXPOSURE, c.Mode, fmt.Sprintf("%g", c.Speed))
	}

	return encodeLine(c.seq, EXPOSURE, c.Mode)
}

type IsoCommand struct {
	base
	ISO int
}

func NewIsoCommand(seq uint32, iso int) *IsoCommand { return &IsoCommand{base{seq}, iso} }
func (c *IsoCommand) Verb() Verb                    { return ISO }
func (c *IsoCommand) Encode() []byte                { return encodeLine(c.seq, ISO, fmt.Sprint(c.ISO)) }

type MeteringCommand struct {
	base
	Mode string
}

func NewMeteringCommand(seq uint32, mode string) *MeteringCommand {
	return &MeteringCommand{base{seq}, mode}
}

func (c *MeteringCommand) Verb() Verb     { return METERING }
func (c *MeteringCommand) Encode() []byte { return encodeLine(c.seq, METERING, c.Mode) }

type LevelsCommand struct {
	base
	Brightness, Contrast, Saturation, Exposure int
}

func NewLevelsCommand(seq uint32, brightness, contrast, saturation, exposure int) *LevelsCommand {
	return &LevelsCommand{base{seq}, brightness, contrast, saturation, exposure}
}

func (c *LevelsCommand) Verb() Verb { return LEVELS }
func (c *LevelsCommand) Encode() []byte {
	return encodeLine(c.seq, LEVELS,
		fmt.Sprint(c.Brightness), fmt.Sprint(c.Contrast), fmt.Sprint(c.Saturation), fmt.Sprint(c.Exposure))
}

type FlipCommand struct {
	base
	Horizontal, Vertical bool
}

func NewFlipCommand(seq uint32, horizontal, vertical bool) *FlipCommand {
	return &FlipCommand{base{seq}, horizontal, vertical}
}

func (c *FlipCommand) Verb() Verb { return FLIP }
func (c *FlipCommand) Encode() []byte {
	return encodeLine(c.seq, FLIP, FormatBool(c.Horizontal), FormatBool(c.Vertical))
}

type AgcCommand struct {
	base
	Mode string
}

func NewAgcCommand(seq uint32, mode string) *AgcCommand { return &AgcCommand{base{seq}, mode} }
func (c *AgcCommand) Verb() Verb                        { return AGC }
func (c *AgcCommand) Encode() []byte                    { return encodeLine(c.seq, AGC, c.Mode) }

type DenoiseCommand struct {
	base
	Enabled bool
}

func NewDenoiseCommand(seq uint32, enabled bool) *DenoiseCommand {
	return &DenoiseCommand{base{seq}, enabled}
}

func (c *DenoiseCommand) Verb() Verb     { return DENOISE }
func (c *DenoiseCommand) Encode() []byte { return encodeLine(c.seq, DENOISE, FormatBool(c.Enabled)) }

type QualityCommand struct {
	base
	Quality int
}

func NewQualityCommand(seq uint32, quality int) *QualityCommand {
	return &QualityCommand{base{seq}, quality}
}

func (c *QualityCommand) Verb() Verb     { return QUALITY }
func (c *QualityCommand) Encode() []byte { return encodeLine(c.seq, QUALITY, fmt.Sprint(c.Quality)) }

type BlinkCommand struct{ base }

func NewBlinkCommand(seq uint32) *BlinkCommand { return &BlinkCommand{base{seq}} }
func (c *BlinkCommand) Verb() Verb             { return BLINK }
func (c *BlinkCommand) Encode() []byte         { return encodeLine(c.seq, BLINK) }

// CaptureCommand carries CAPTURE's optional count/video-port/sync
// arguments. Sync is nil when the capture should happen immediately.
type CaptureCommand struct {
	base
	Count     int
	VideoPort int
	Sync      *float64
}

func NewCaptureCommand(seq uint32, count, videoPort int, sync *float64) *CaptureCommand {
	return &CaptureCommand{base{seq}, count, videoPort, sync}
}

func (c *CaptureCommand) Verb() Verb { return CAPTURE }
func (c *CaptureCommand) Encode() []byte {
	args := []string{fmt.Sprint(c.Count)}
	if c.VideoPort != 0 || c.Sync != nil {
		args = append(args, fmt.Sprint(c.VideoPort))
	}
	if c.Sync != nil {
		args = append(args, FormatTimestamp(*c.Sync))
	}

	return encodeLine(c.seq, CAPTURE, args...)
}

type ListCommand struct{ base }

func NewListCommand(seq uint32) *ListCommand { return &ListCommand{base{seq}} }
func (c *ListCommand) Verb() Verb            { return LIST }
func (c *ListCommand) Encode() []byte        { return encodeLine(c.seq, LIST) }

type ClearCommand struct{ base }

func NewClearCommand(seq uint32) *ClearCommand { return &ClearCommand{base{seq}} }
func (c *ClearCommand) Verb() Verb             { return CLEAR }
func (c *ClearCommand) Encode() []byte         { return encodeLine(c.seq, CLEAR) }

type SendCommand struct {
	base
	Index, Port int
}

func NewSendCommand(seq uint32, index, port int) *SendCommand {
	return &SendCommand{base{seq}, index, port}
}

func (c *SendCommand) Verb() Verb { return SEND }
func (c *SendCommand) Encode() []byte {
	return encodeLine(c.seq, SEND, fmt.Sprint(c.Index), fmt.Sprint(c.Port))
}

var (
	_ Command = (*HelloCommand)(nil)
	_ Command = (*AckCommand)(nil)
	_ Command = (*StatusCommand)(nil)
	_ Command = (*ResolutionCommand)(nil)
	_ Command = (*FramerateCommand)(nil)
	_ Command = (*AwbCommand)(nil)
	_ Command = (*ExposureCommand)(nil)
	_ Command = (*IsoCommand)(nil)
	_ Command = (*MeteringCommand)(nil)
	_ Command = (*LevelsCommand)(nil)
	_ Command = (*FlipCommand)(nil)
	_ Command = (*AgcCommand)(nil)
	_ Command = (*DenoiseCommand)(nil)
	_ Command = (*QualityCommand)(nil)
	_ Command = (*BlinkCommand)(nil)
	_ Command = (*CaptureCommand)(nil)
	_ Command = (*ListCommand)(nil)
	_ Command = (*ClearCommand)(nil)
	_ Command = (*SendCommand)(nil)
)
