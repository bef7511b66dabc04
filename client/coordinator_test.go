package client_test

import (
	"bytes"
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/compoundpi/compoundpi/client"
	"github.com/compoundpi/compoundpi/protocol"
	"github.com/compoundpi/compoundpi/transport"
)

// fakeServer answers every command it reads with a canned OK response
// carrying that command's seq, enough to exercise the coordinator's
// retry/collect loop without a real camera or dispatch stack.
type fakeServer struct {
	conn *net.UDPConn
}

func newFakeServer() (*fakeServer, *net.UDPAddr) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	Expect(err).To(Succeed())
	return &fakeServer{conn: conn}, conn.LocalAddr().(*net.UDPAddr)
}

func (f *fakeServer) close() { f.conn.Close() }

// serveOnce starts one goroutine that replies to every command it reads,
// client retransmits included, with an OK response holding the given data
// lines. ACKs from the client are read and dropped.
func (f *fakeServer) serveOnce(okData []string) {
	go func() {
		buf := make([]byte, 65536)
		for {
			n, addr, err := f.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}

			cmd, err := protocol.ReadCommand(bytes.NewReader(buf[:n]))
			if err != nil {
				continue
			}

			if cmd.Verb() == protocol.ACK {
				continue
			}

			var out bytes.Buffer
			if err := protocol.WriteOKLines(&out, cmd.Seq(), okData...); err != nil {
				continue
			}
			f.conn.WriteToUDP(out.Bytes(), addr)
		}
	}()
}

var _ = Describe("Coordinator", func() {
	It("resolves resolution against a single known peer", func() {
		fake, fakeAddr := newFakeServer()
		defer fake.close()
		fake.serveOnce(nil)

		clientSocket, err := transport.NewUDPSocket(transport.UDPOptions{Host: "127.0.0.1", Port: 0})
		Expect(err).To(Succeed())
		defer clientSocket.Close()

		_, cidr, err := net.ParseCIDR("127.0.0.1/32")
		Expect(err).To(Succeed())

		coord := client.NewCoordinator(clientSocket, client.Config{
			Port:    fakeAddr.Port,
			CIDR:    cidr,
			Timeout: 2 * time.Second,
		}, nil)

		_, err = coord.Add("127.0.0.1", false)
		Expect(err).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err = coord.Resolution(ctx, 1920, 1080, "127.0.0.1")
		Expect(err).To(Succeed())
	})

	It("reports undefined servers when addressing an unknown peer", func() {
		clientSocket, err := transport.NewUDPSocket(transport.UDPOptions{Host: "127.0.0.1", Port: 0})
		Expect(err).To(Succeed())
		defer clientSocket.Close()

		_, cidr, _ := net.ParseCIDR("127.0.0.1/32")

		coord := client.NewCoordinator(clientSocket, client.Config{CIDR: cidr, Timeout: 200 * time.Millisecond}, nil)

		err = coord.Resolution(context.Background(), 640, 480, "10.0.0.5")
		Expect(err).To(HaveOccurred())
	})

	It("reports no servers when the fleet is empty and no addresses are given", func() {
		clientSocket, err := transport.NewUDPSocket(transport.UDPOptions{Host: "127.0.0.1", Port: 0})
		Expect(err).To(Succeed())
		defer clientSocket.Close()

		_, cidr, _ := net.ParseCIDR("127.0.0.1/32")

		coord := client.NewCoordinator(clientSocket, client.Config{CIDR: cidr, Timeout: 200 * time.Millisecond}, nil)

		err = coord.Blink(context.Background())
		Expect(err).To(HaveOccurred())
	})
})
