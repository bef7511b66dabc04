package protocol_test

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/compoundpi/compoundpi/protocol"
)

var _ = Describe("Parsing", func() {
	Describe("ReadCommand()", func() {
		It("returns an error if the reader has no newline", func() {
			data := bytes.NewReader([]byte("1 HELLO 1.0"))
			_, err := protocol.ReadCommand(data)
			Expect(err).To(MatchError(io.EOF))
		})

		It("returns an error if the sequence number is zero", func() {
			data := bytes.NewReader([]byte("0 HELLO 1.0\n"))
			_, err := protocol.ReadCommand(data)
			Expect(errors.Is(err, protocol.ErrBadSeq)).To(BeTrue())
		})

		It("returns an error if the sequence number is not numeric", func() {
			data := bytes.NewReader([]byte("x HELLO 1.0\n"))
			_, err := protocol.ReadCommand(data)
			Expect(errors.Is(err, protocol.ErrBadSeq)).To(BeTrue())
		})

		It("returns an error if the verb is unknown", func() {
			data := bytes.NewReader([]byte("1 FOO\n"))
			_, err := protocol.ReadCommand(data)
			Expect(errors.Is(err, protocol.ErrUnknownVerb)).To(BeTrue())
		})

		It("parses HELLO", func() {
			data := bytes.NewReader([]byte("1 HELLO 1400803122.359911\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			Expect(cmd.Seq()).To(Equal(uint32(1)))
			Expect(cmd.Verb()).To(Equal(protocol.HELLO))

			hello, ok := cmd.(*protocol.HelloCommand)
			Expect(ok).To(BeTrue())
			Expect(hello.Timestamp).To(BeNumerically("~", 1400803122.359911, 1e-6))
		})

		It("parses ACK", func() {
			data := bytes.NewReader([]byte("42 ACK\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			Expect(cmd.Verb()).To(Equal(protocol.ACK))
			Expect(cmd.Seq()).To(Equal(uint32(42)))
		})

		It("parses STATUS", func() {
			data := bytes.NewReader([]byte("4 STATUS\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			Expect(cmd.Verb()).To(Equal(protocol.STATUS))
		})

		It("parses RESOLUTION", func() {
			data := bytes.NewReader([]byte("2 RESOLUTION 1280 720\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			res := cmd.(*protocol.ResolutionCommand)
			Expect(res.Width).To(Equal(1280))
			Expect(res.Height).To(Equal(720))
		})

		It("rejects RESOLUTION with missing args", func() {
			data := bytes.NewReader([]byte("2 RESOLUTION 1280\n"))
			_, err := protocol.ReadCommand(data)
			Expect(errors.Is(err, protocol.ErrBadArgs)).To(BeTrue())
		})

		It("parses FRAMERATE with a fraction", func() {
			data := bytes.NewReader([]byte("3 FRAMERATE 15/2\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			fr := cmd.(*protocol.FramerateCommand)
			Expect(protocol.FormatFraction(fr.Rate)).To(Equal("15/2"))
		})

		It("parses AWB with mode only", func() {
			data := bytes.NewReader([]byte("3 AWB auto\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			awb := cmd.(*protocol.AwbCommand)
			Expect(awb.Mode).To(Equal("auto"))
			Expect(awb.HasGains).To(BeFalse())
		})

		It("parses AWB with manual gains", func() {
			data := bytes.NewReader([]byte("3 AWB off 1.5 1.3\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			awb := cmd.(*protocol.AwbCommand)
			Expect(awb.Mode).To(Equal("off"))
			Expect(awb.HasGains).To(BeTrue())
		})

		It("parses CAPTURE with no arguments using defaults", func() {
			data := bytes.NewReader([]byte("5 CAPTURE\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			capCmd := cmd.(*protocol.CaptureCommand)
			Expect(capCmd.Count).To(Equal(1))
			Expect(capCmd.VideoPort).To(Equal(0))
			Expect(capCmd.Sync).To(BeNil())
		})

		It("parses CAPTURE with count, video port and sync", func() {
			data := bytes.NewReader([]byte("5 CAPTURE 2 1 1700000000.5\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			capCmd := cmd.(*protocol.CaptureCommand)
			Expect(capCmd.Count).To(Equal(2))
			Expect(capCmd.VideoPort).To(Equal(1))
			Expect(capCmd.Sync).NotTo(BeNil())
			Expect(*capCmd.Sync).To(BeNumerically("~", 1700000000.5, 1e-3))
		})

		It("parses SEND", func() {
			data := bytes.NewReader([]byte("6 SEND 0 5647\n"))
			cmd, err := protocol.ReadCommand(data)
			Expect(err).To(Succeed())
			send := cmd.(*protocol.SendCommand)
			Expect(send.Index).To(Equal(0))
			Expect(send.Port).To(Equal(5647))
		})
	})

	Describe("ReadResponse()", func() {
		It("parses a bare OK response", func() {
			data := bytes.NewReader([]byte("2 OK\n"))
			resp, err := protocol.ReadResponse(data)
			Expect(err).To(Succeed())
			Expect(resp.Seq).To(Equal(uint32(2)))
			Expect(resp.Status).To(Equal(protocol.OK))
			Expect(resp.Data).To(BeEmpty())
		})

		It("parses an OK response with data", func() {
			data := bytes.NewReader([]byte("1 OK\nVERSION 0.4\n"))
			resp, err := protocol.ReadResponse(data)
			Expect(err).To(Succeed())
			Expect(resp.Data).To(Equal([]string{"VERSION 0.4"}))
		})

		It("parses an ERROR response", func() {
			data := bytes.NewReader([]byte("7 ERROR\nUnknown command FOO\n"))
			resp, err := protocol.ReadResponse(data)
			Expect(err).To(Succeed())
			Expect(resp.Status).To(Equal(protocol.ERROR))
			Expect(resp.ErrorOrNil()).To(MatchError("Unknown command FOO"))
		})

		It("returns an error for an unrecognised result word", func() {
			data := bytes.NewReader([]byte("7 MAYBE\n"))
			_, err := protocol.ReadResponse(data)
			Expect(errors.Is(err, protocol.ErrUnknownResult)).To(BeTrue())
		})
	})

	Describe("round trip", func() {
		It("encodes then decodes a HELLO command back to the same values", func() {
			cmd := protocol.NewHelloCommand(1, 1400803122.359911)
			decoded, err := protocol.ReadCommand(bytes.NewReader(cmd.Encode()))
			Expect(err).To(Succeed())

			hello := decoded.(*protocol.HelloCommand)
			Expect(hello.Seq()).To(Equal(cmd.Seq()))
			Expect(hello.Timestamp).To(BeNumerically("~", cmd.Timestamp, 1e-6))
		})

		It("encodes then decodes a CAPTURE command with sync", func() {
			sync := 1700000000.25
			cmd := protocol.NewCaptureCommand(9, 3, 1, &sync)
			decoded, err := protocol.ReadCommand(bytes.NewReader(cmd.Encode()))
			Expect(err).To(Succeed())

			capCmd := decoded.(*protocol.CaptureCommand)
			Expect(capCmd.Count).To(Equal(3))
			Expect(capCmd.VideoPort).To(Equal(1))
			Expect(*capCmd.Sync).To(BeNumerically("~", sync, 1e-3))
		})

		It("encodes then decodes an OK response with data", func() {
			var buf bytes.Buffer
			Expect(protocol.WriteOKLines(&buf, 4, protocol.EncodeStatus(protocol.StatusInfo{
				Width: 1280, Height: 720,
				Framerate: bigRat(30, 1),
				AWBMode:   "auto", AWBRed: bigRat(3, 2), AWBBlue: bigRat(13, 10),
				ExposureMode: "auto", ExposureSpeed: 33.158, ExposureComp: 0,
				ISO: 0, MeteringMode: "average",
				Brightness: 50, Contrast: 0, Saturation: 0,
				FlipH: false, FlipV: false,
				Timestamp: 1400803173.991651, Images: 1,
			})...)).To(Succeed())

			resp, err := protocol.ReadResponse(&buf)
			Expect(err).To(Succeed())
			Expect(resp.Seq).To(Equal(uint32(4)))

			status, err := protocol.DecodeStatus(resp.Data)
			Expect(err).To(Succeed())
			Expect(status.Width).To(Equal(1280))
			Expect(status.Images).To(Equal(1))
			Expect(status.MeteringMode).To(Equal("average"))
		})
	})
})
