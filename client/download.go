package client

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/compoundpi/compoundpi/fleet"
	"github.com/compoundpi/compoundpi/protocol"
	"github.com/compoundpi/compoundpi/transport"
)

// Send performs the image transfer pipeline (§4.3 "Download"): it binds a
// short-lived TCP accept socket, issues SEND over UDP, accepts the
// resulting connection from addr, and streams the image into sink. On any
// failure the partially written sink is the caller's to discard.
func (c *Coordinator) Send(ctx context.Context, addr string, index int, sink io.Writer) error {
	peer, ok := c.peers.Find(addr)
	if !ok {
		return &UndefinedServersError{Addrs: []string{addr}}
	}

	dl, err := transport.NewDownload(transport.DownloadOptions{Host: "", Port: 0, Log: c.log})
	if err != nil {
		return fmt.Errorf("bind download listener: %w", err)
	}
	defer dl.Close()

	acceptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type acceptResult struct {
		n   int64
		err error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		n, err := dl.Accept(acceptCtx, peer.Key(), sink)
		acceptCh <- acceptResult{n, err}
	}()

	resps, errs := c.transact(ctx, []*fleet.Peer{peer}, false, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewSendCommand(seq, index, dl.Port()).Encode()
	})

	res := <-acceptCh
	n, acceptErr := res.n, res.err

	if len(errs) > 0 {
		return errs[peer.Key()]
	}

	resp, ok := resps[peer.Key()]
	if !ok {
		return ErrSendTimeout
	}
	if respErr := resp.ErrorOrNil(); respErr != nil {
		return fmt.Errorf("%w: %s", ErrServer, respErr)
	}

	if acceptErr != nil {
		return fmt.Errorf("accept image transfer: %w", acceptErr)
	}

	c.log.Debug("received image", zap.String("addr", peer.Key()), zap.Int("index", index), zap.Int64("bytes", n))

	return nil
}

// Download is the high-level counterpart to Send: it iterates addrs
// sequentially (to avoid contending for network bandwidth), downloads the
// named image index from each into a sink provided by newSink, and issues
// CLEAR to a peer immediately after a successful transfer.
func (c *Coordinator) Download(ctx context.Context, addrs []string, index int, newSink func(addr string) (io.WriteCloser, error)) error {
	errs := make(map[string]error)

	for _, addr := range addrs {
		sink, err := newSink(addr)
		if err != nil {
			errs[addr] = err
			continue
		}

		err = c.Send(ctx, addr, index, sink)
		closeErr := sink.Close()

		if err != nil {
			errs[addr] = err
			continue
		}
		if closeErr != nil {
			errs[addr] = closeErr
			continue
		}

		if err := c.Clear(ctx, addr); err != nil {
			errs[addr] = err
		}
	}

	return newFleetError(errs)
}
