package transport_test

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/compoundpi/compoundpi/transport"
)

var _ = Describe("Download", func() {
	var dl *transport.Download

	BeforeEach(func() {
		var err error
		dl, err = transport.NewDownload(transport.DownloadOptions{Host: "127.0.0.1", Port: 0})
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		dl.Close()
	})

	It("accepts one connection and streams its body into the sink", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		resultCh := make(chan struct {
			n   int64
			err error
		}, 1)

		go func() {
			var buf bytes.Buffer
			n, err := dl.Accept(ctx, "", &buf)
			resultCh <- struct {
				n   int64
				err error
			}{n, err}
			Expect(buf.String()).To(Equal("image-bytes"))
		}()

		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(dl.Port())))
		Expect(err).To(Succeed())
		_, err = conn.Write([]byte("image-bytes"))
		Expect(err).To(Succeed())
		Expect(conn.Close()).To(Succeed())

		res := <-resultCh
		Expect(res.err).To(Succeed())
		Expect(res.n).To(Equal(int64(len("image-bytes"))))
	})

	It("rejects a connection from an unexpected host", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		resultCh := make(chan error, 1)
		go func() {
			var buf bytes.Buffer
			_, err := dl.Accept(ctx, "10.0.0.99", &buf)
			resultCh <- err
		}()

		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(dl.Port())))
		Expect(err).To(Succeed())
		defer conn.Close()

		Expect(<-resultCh).To(HaveOccurred())
	})

	It("returns an error when the context is cancelled before a connection arrives", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		var buf bytes.Buffer
		_, err := dl.Accept(ctx, "", &buf)
		Expect(err).To(HaveOccurred())
	})
})
