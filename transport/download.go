package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/zap"
)

// DownloadOptions configures a Download listener.
type DownloadOptions struct {
	Host string
	Port int
	Log  *zap.Logger
}

// Download is the client side of an image transfer: a short-lived TCP
// listener that accepts exactly one connection (the server pushing the
// requested image) and streams its body into a sink.
//
// This mirrors luma-pharos's long-lived TCPListener, scoped down to a
// single accept instead of a persistent connection pool, since a Compound
// Pi image transfer is one-shot.
type Download struct {
	listener net.Listener
	log      *zap.Logger
}

// NewDownload binds a TCP listener on the configured host/port.
func NewDownload(options DownloadOptions) (*Download, error) {
	addr := net.JoinHostPort(options.Host, strconv.Itoa(options.Port))

	l, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind download listener on %s: %w", addr, err)
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Download{listener: l, log: log}, nil
}

// Port returns the port the listener ended up bound to (useful when Port
// was 0, requesting an ephemeral port).
func (d *Download) Port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

// Close releases the listener. Safe to call even if Accept is in-flight; it
// will unblock Accept with a "use of closed network connection" error.
func (d *Download) Close() error {
	return d.listener.Close()
}

// Accept waits for one inbound connection from expectedHost (an IP address;
// empty to accept from anyone), copies its body into sink until EOF, and
// returns the number of bytes copied.
func (d *Download) Accept(ctx context.Context, expectedHost string, sink io.Writer) (int64, error) {
	type result struct {
		conn net.Conn
		err  error
	}

	acceptCh := make(chan result, 1)
	go func() {
		conn, err := d.listener.Accept()
		acceptCh <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		d.listener.Close()
		<-acceptCh
		return 0, ctx.Err()

	case res := <-acceptCh:
		if res.err != nil {
			return 0, fmt.Errorf("accept download connection: %w", res.err)
		}
		defer res.conn.Close()

		if expectedHost != "" {
			remoteHost, _, err := net.SplitHostPort(res.conn.RemoteAddr().String())
			if err == nil && remoteHost != expectedHost {
				return 0, fmt.Errorf("download connection from %s, expected %s", remoteHost, expectedHost)
			}
		}

		n, err := io.Copy(sink, res.conn)
		if err != nil {
			return n, fmt.Errorf("read download body: %w", err)
		}

		return n, nil
	}
}
