package server_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/compoundpi/compoundpi/camera"
	"github.com/compoundpi/compoundpi/protocol"
	"github.com/compoundpi/compoundpi/server"
	"github.com/compoundpi/compoundpi/transport"
)

type testHandler struct {
	h      *server.Handler
	socket *transport.UDPSocket
	client *net.UDPConn
	cancel context.CancelFunc
}

func startHandler() *testHandler {
	socket, err := transport.NewUDPSocket(transport.UDPOptions{Host: "127.0.0.1", Port: 0})
	Expect(err).To(Succeed())

	h := server.NewHandler(socket, camera.NewFake(), server.Config{
		RetryMin: 20 * time.Millisecond,
		RetryMax: 40 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Serve(ctx)

	client, err := net.DialUDP("udp", nil, socket.LocalAddr())
	Expect(err).To(Succeed())

	return &testHandler{h: h, socket: socket, client: client, cancel: cancel}
}

func (t *testHandler) stop() {
	t.cancel()
	t.client.Close()
	t.socket.Close()
}

func (t *testHandler) send(frame []byte) {
	_, err := t.client.Write(frame)
	Expect(err).To(Succeed())
}

func (t *testHandler) recv() *protocol.Response {
	buf := make([]byte, 65536)
	Expect(t.client.SetReadDeadline(time.Now().Add(time.Second))).To(Succeed())
	n, err := t.client.Read(buf)
	Expect(err).To(Succeed())

	resp, err := protocol.ReadResponse(byteReader(buf[:n]))
	Expect(err).To(Succeed())
	return resp
}

func (t *testHandler) hello(seq uint32, ts float64) *protocol.Response {
	t.send(protocol.NewHelloCommand(seq, ts).Encode())
	resp := t.recv()
	t.send(protocol.NewAckCommand(resp.Seq).Encode())
	return resp
}

var _ = Describe("Handler", func() {
	It("accepts HELLO and reports the matching protocol version", func() {
		th := startHandler()
		defer th.stop()

		resp := th.hello(1, 1000.0)
		Expect(resp.Status).To(Equal(protocol.OK))

		version, err := protocol.DecodeHello(resp.Data)
		Expect(err).To(Succeed())
		Expect(version).To(Equal(protocol.Version))
	})

	It("executes a duplicate command's effect only once, resending the cached response (invariant 1)", func() {
		th := startHandler()
		defer th.stop()

		th.hello(1, 1000.0)

		th.send(protocol.NewResolutionCommand(2, 1920, 1080).Encode())
		first := th.recv()
		Expect(first.Status).To(Equal(protocol.OK))

		// Resend without ACKing: the server must reply with the identical
		// cached response instead of re-executing.
		th.send(protocol.NewResolutionCommand(2, 1920, 1080).Encode())
		second := th.recv()
		Expect(second).To(Equal(first))

		th.send(protocol.NewResolutionCommand(2, 1920, 1080).Encode())
		third := th.recv()
		Expect(third).To(Equal(first))
	})

	It("stops retrying a response within one retry interval after the ACK (invariant 2)", func() {
		th := startHandler()
		defer th.stop()

		th.hello(1, 1000.0)

		th.send(protocol.NewStatusCommand(2).Encode())
		resp := th.recv()
		Expect(resp.Status).To(Equal(protocol.OK))

		th.send(protocol.NewAckCommand(resp.Seq).Encode())

		// No further retransmit should arrive once ACKed.
		Expect(th.client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))).To(Succeed())
		buf := make([]byte, 65536)
		_, err := th.client.Read(buf)
		Expect(err).To(HaveOccurred())
	})

	It("never resets the session on a stale HELLO timestamp (invariant 4 / S3)", func() {
		th := startHandler()
		defer th.stop()

		th.hello(7, 2000.0)

		th.send(protocol.NewHelloCommand(20, 1500.0).Encode())

		// Stale HELLO is silently ignored: nothing should arrive.
		Expect(th.client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))).To(Succeed())
		buf := make([]byte, 65536)
		_, err := th.client.Read(buf)
		Expect(err).To(HaveOccurred())

		// The prior session is still usable.
		th.send(protocol.NewStatusCommand(8).Encode())
		resp := th.recv()
		Expect(resp.Status).To(Equal(protocol.OK))
	})

	It("restarts image indexing at 0 after CLEAR (invariant 5)", func() {
		th := startHandler()
		defer th.stop()

		th.hello(1, 1000.0)

		th.send(protocol.NewCaptureCommand(2, 1, 0, nil).Encode())
		Expect(th.recv().Status).To(Equal(protocol.OK))

		th.send(protocol.NewListCommand(3).Encode())
		listResp := th.recv()
		entries, err := protocol.DecodeList(listResp.Data)
		Expect(err).To(Succeed())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Index).To(Equal(0))

		th.send(protocol.NewClearCommand(4).Encode())
		Expect(th.recv().Status).To(Equal(protocol.OK))

		th.send(protocol.NewCaptureCommand(5, 1, 0, nil).Encode())
		Expect(th.recv().Status).To(Equal(protocol.OK))

		th.send(protocol.NewListCommand(6).Encode())
		listResp2 := th.recv()
		entries2, err := protocol.DecodeList(listResp2.Data)
		Expect(err).To(Succeed())
		Expect(entries2).To(HaveLen(1))
		Expect(entries2[0].Index).To(Equal(0))
	})

	It("rejects an out-of-range SEND index", func() {
		th := startHandler()
		defer th.stop()

		th.hello(1, 1000.0)

		th.send(protocol.NewSendCommand(2, 0, 9999).Encode())
		resp := th.recv()
		Expect(resp.Status).To(Equal(protocol.ERROR))
	})
})
