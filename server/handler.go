// Package server implements the protocol handler: a single-threaded
// dispatch loop over a UDP socket (§4.4), fronting a camera and an image
// store.
package server

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/compoundpi/compoundpi/camera"
	"github.com/compoundpi/compoundpi/capture"
	"github.com/compoundpi/compoundpi/protocol"
	"github.com/compoundpi/compoundpi/transport"
)

// Config bounds the handler's retry sweep and session eviction.
type Config struct {
	RetryMin, RetryMax time.Duration
	RetryTotal         time.Duration
	IdleTimeout        time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryMin == 0 {
		c.RetryMin = 100 * time.Millisecond
	}
	if c.RetryMax == 0 {
		c.RetryMax = 400 * time.Millisecond
	}
	if c.RetryTotal == 0 {
		c.RetryTotal = 5 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	return c
}

// Handler is the server-side protocol handler (§4.4).
type Handler struct {
	socket *transport.UDPSocket
	cam    camera.Camera
	store  *capture.Store

	sessions *sessions
	retries  *retrySet

	settingsMu sync.RWMutex
	settingsV  camera.Settings

	cfg Config
	log *zap.Logger
}

// NewHandler wires a UDP socket and a camera into a protocol handler.
func NewHandler(socket *transport.UDPSocket, cam camera.Camera, cfg Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}

	cfg = cfg.withDefaults()

	return &Handler{
		socket:    socket,
		cam:       cam,
		store:     capture.NewStore(),
		sessions:  newSessions(),
		retries:   newRetrySet(cfg.RetryMin, cfg.RetryMax, cfg.RetryTotal),
		settingsV: camera.DefaultSettings(),
		cfg:       cfg,
		log:       log.Named("server"),
	}
}

// Store exposes the image store, e.g. for the debug HTTP surface.
func (h *Handler) Store() *capture.Store {
	return h.store
}

// Settings returns the handler's current camera settings, e.g. for the
// debug HTTP surface.
func (h *Handler) Settings() camera.Settings {
	return h.settings()
}

func (h *Handler) settings() camera.Settings {
	h.settingsMu.RLock()
	defer h.settingsMu.RUnlock()

	return h.settingsV
}

// mutate applies fn to a copy of the current settings, validates the
// result, and on success commits it to the camera and to the handler's
// record; on failure the camera and settings are left untouched (§4.4
// "do not alter camera state on failure").
func (h *Handler) mutate(seq uint32, fn func(*camera.Settings) error) []byte {
	h.settingsMu.Lock()
	defer h.settingsMu.Unlock()

	next := h.settingsV
	if err := fn(&next); err != nil {
		return errResponse(seq, err)
	}
	if err := next.Validate(); err != nil {
		return errResponse(seq, fmt.Errorf("%w: %s", ErrArgument, err))
	}
	if err := h.cam.Configure(next); err != nil {
		return errResponse(seq, fmt.Errorf("%w: %s", ErrCamera, err))
	}

	h.settingsV = next

	return okResponse(seq)
}

// pushImage streams data to host:port, the server-opened TCP side of a
// SEND transaction (§4.4, §6 "TCP image transfer").
func (h *Handler) pushImage(host string, port int, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return transport.Push(ctx, host, port, data, transport.PushOptions{})
}

// Serve runs the single-threaded dispatch loop until ctx is cancelled. It
// interleaves reading inbound datagrams with servicing the response retry
// sweep and the idle-session sweep, never blocking indefinitely on any one
// of them (§5 "Suspension/blocking points").
func (h *Handler) Serve(ctx context.Context) error {
	buf := make([]byte, 65536)
	idleTicker := time.NewTicker(h.cfg.IdleTimeout / 2)
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-idleTicker.C:
			h.sessions.evictIdle(time.Now().Add(-h.cfg.IdleTimeout))

		default:
		}

		_ = h.socket.SetReadDeadline(time.Now().Add(20 * time.Millisecond))

		n, addr, err := h.socket.Recv(buf)
		if err != nil {
			h.sweepRetries()
			continue
		}

		h.dispatch(addr, buf[:n])
	}
}

func (h *Handler) sweepRetries() {
	for _, e := range h.retries.due(time.Now()) {
		if err := h.socket.SendTo(e.addr, e.payload); err != nil {
			h.log.Warn("retry send failed", zap.String("addr", e.addr.String()), zap.Error(err))
		}
	}
}

func (h *Handler) dispatch(addr *net.UDPAddr, payload []byte) {
	key := addr.IP.String()

	cmd, err := protocol.ReadCommand(bytes.NewReader(payload))
	if err != nil {
		h.log.Warn("malformed command", zap.String("addr", key), zap.Error(err))
		return
	}

	if cmd.Verb() == protocol.HELLO {
		h.handleHello(addr, key, cmd.(*protocol.HelloCommand))
		return
	}

	if cmd.Verb() == protocol.ACK {
		h.retries.ack(key, cmd.Seq())
		return
	}

	sess, ok := h.sessions.find(key)
	if !ok {
		h.log.Debug("command before hello, ignoring", zap.String("addr", key))
		return
	}

	if cached, ok := sess.lookup(cmd.Seq()); ok {
		if err := h.socket.SendTo(addr, cached.payload); err != nil {
			h.log.Warn("resend failed", zap.String("addr", key), zap.Error(err))
		}
		return
	}

	handler, ok := handlers[cmd.Verb()]
	if !ok {
		h.log.Warn("no handler for verb", zap.String("verb", string(cmd.Verb())))
		return
	}

	resp := handler(h, sess, key, cmd)
	sess.record(cmd.Seq(), resp)

	if err := h.socket.SendTo(addr, resp); err != nil {
		h.log.Warn("send failed", zap.String("addr", key), zap.Error(err))
		return
	}

	h.retries.add(addr, cmd.Seq(), resp)
}

func (h *Handler) handleHello(addr *net.UDPAddr, key string, cmd *protocol.HelloCommand) {
	_, reset := h.sessions.getOrCreate(key, cmd.Seq(), cmd.Timestamp)
	if !reset {
		h.log.Debug("ignoring hello", zap.String("addr", key), zap.Error(ErrStaleHello))
		return
	}

	resp := okResponse(cmd.Seq(), protocol.HelloData(protocol.Version)...)

	if err := h.socket.SendTo(addr, resp); err != nil {
		h.log.Warn("hello response failed", zap.String("addr", key), zap.Error(err))
		return
	}

	h.retries.add(addr, cmd.Seq(), resp)
}
