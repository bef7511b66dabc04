// Package client implements the fleet coordinator: the client side of the
// Compound Pi protocol, responsible for discovery, per-peer command
// dispatch with retry/ACK, status aggregation, and image download.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"net"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/compoundpi/compoundpi/fleet"
	"github.com/compoundpi/compoundpi/protocol"
	"github.com/compoundpi/compoundpi/transport"
)

// Config bounds the coordinator's retry/collect loop and fleet-wide
// discrepancy checks (§4.3, §5).
type Config struct {
	// Port is the servers' UDP port (default 5647).
	Port int

	// CIDR is the subnet used to derive the broadcast address.
	CIDR *net.IPNet

	// Timeout bounds every multi-peer operation (default 5s).
	Timeout time.Duration

	// RetryMin/RetryMax bound the random retransmit delay (default
	// 100ms/400ms per §4.3).
	RetryMin, RetryMax time.Duration

	// TimeDelta is the maximum tolerated peer timestamp skew before
	// status() flags a discrepancy.
	TimeDelta float64
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 5647
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryMin == 0 {
		c.RetryMin = 100 * time.Millisecond
	}
	if c.RetryMax == 0 {
		c.RetryMax = 400 * time.Millisecond
	}
	return c
}

// Coordinator is the client-side fleet coordinator (§4.3).
type Coordinator struct {
	socket *transport.UDPSocket
	peers  *fleet.Peers
	cfg    Config
	log    *zap.Logger
}

// NewCoordinator wires a UDP socket and a peer registry into a coordinator.
func NewCoordinator(socket *transport.UDPSocket, cfg Config, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}

	return &Coordinator{
		socket: socket,
		peers:  fleet.NewPeers(),
		cfg:    cfg.withDefaults(),
		log:    log,
	}
}

// Peers exposes the fleet registry for management operations.
func (c *Coordinator) Peers() *fleet.Peers {
	return c.peers
}

// Add registers a server address, resolving it with the coordinator's port.
func (c *Coordinator) Add(ip string, redefine bool) (*fleet.Peer, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: c.cfg.Port}
	if addr.IP == nil {
		return nil, fmt.Errorf("invalid address %q", ip)
	}

	peer, err := c.peers.Add(addr, redefine)
	if err != nil {
		if errors.Is(err, fleet.ErrAlreadyDefined) {
			return nil, &RedefinedServerError{Addr: ip}
		}
		return nil, err
	}

	return peer, nil
}

// Remove drops a server from the fleet.
func (c *Coordinator) Remove(ip string) {
	c.peers.Remove(ip)
}

// Servers returns the addresses of every known peer, in add order.
func (c *Coordinator) Servers() []string {
	all := c.peers.All()
	out := make([]string, len(all))
	for i, p := range all {
		out[i] = p.Key()
	}
	return out
}

// resolveTargets returns the peers a fleet-wide operation should address.
// Explicit addrs narrow the set; none means every known peer.
func (c *Coordinator) resolveTargets(addrs []string) ([]*fleet.Peer, error) {
	if len(addrs) == 0 {
		if c.peers.Len() == 0 {
			return nil, &NoServersError{}
		}
		return c.peers.All(), nil
	}

	var missing []string
	targets := make([]*fleet.Peer, 0, len(addrs))
	for _, a := range addrs {
		p, ok := c.peers.Find(a)
		if !ok {
			missing = append(missing, a)
			continue
		}
		targets = append(targets, p)
	}

	if len(missing) > 0 {
		return nil, &UndefinedServersError{Addrs: missing}
	}

	return targets, nil
}

// pending tracks one in-flight target within a transact() call.
type pending struct {
	peer        *fleet.Peer
	seq         uint32
	frame       []byte
	nextRetryAt time.Time
	resp        *protocol.Response
}

// transact drives the retry/collect loop (§4.3): it sends frame(peer) to
// every target (either broadcast once, reusing the same datagram, or one
// unicast send per peer), retransmits to still-pending peers on a random
// interval, and ACKs every response it accepts, until every target has
// responded or the overall timeout elapses.
func (c *Coordinator) transact(
	ctx context.Context,
	targets []*fleet.Peer,
	broadcast bool,
	frame func(peer *fleet.Peer, seq uint32) []byte,
) (map[string]*protocol.Response, map[string]error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	byKey := make(map[string]*pending, len(targets))
	for _, p := range targets {
		seq := p.NextSeq()
		byKey[p.Key()] = &pending{peer: p, seq: seq, frame: frame(p, seq)}
	}

	send := func(pd *pending) {
		var err error
		if broadcast {
			err = c.socket.Broadcast(c.cfg.CIDR, c.cfg.Port, pd.frame)
		} else {
			err = c.socket.SendTo(pd.peer.Addr, pd.frame)
		}
		if err != nil {
			c.log.Warn("send failed", zap.String("addr", pd.peer.Key()), zap.Error(err))
		}
		pd.nextRetryAt = time.Now().Add(randomDelay(c.cfg.RetryMin, c.cfg.RetryMax))
	}

	pendingCount := len(byKey)
	if broadcast && pendingCount > 0 {
		// One broadcast datagram reaches every target; seed retry clocks
		// without resending the frame per peer.
		any := targets[0]
		send(byKey[any.Key()])
		for _, pd := range byKey {
			pd.nextRetryAt = byKey[any.Key()].nextRetryAt
		}
	} else {
		for _, pd := range byKey {
			send(pd)
		}
	}

	buf := make([]byte, 65536)
	errs := make(map[string]error)

	for pendingCount > 0 {
		select {
		case <-ctx.Done():
			for key, pd := range byKey {
				if pd.resp == nil {
					errs[key] = ErrSendTimeout
				}
			}
			return responsesOf(byKey), errs

		default:
		}

		readDeadline := time.Now().Add(20 * time.Millisecond)
		_ = c.socket.SetReadDeadline(readDeadline)

		n, addr, err := c.socket.Recv(buf)
		if err != nil {
			c.retransmitDue(byKey, broadcast, send)
			continue
		}

		pd, ok := byKey[addr.IP.String()]
		if !ok {
			c.log.Debug("dropping response", zap.String("addr", addr.IP.String()), zap.Error(ErrUnknownAddress))
			continue
		}

		if addr.Port != pd.peer.Addr.Port {
			c.log.Debug("dropping response", zap.String("addr", addr.String()), zap.Error(ErrWrongPort))
			continue
		}

		resp, err := protocol.ReadResponse(bytes.NewReader(buf[:n]))
		if err != nil {
			c.log.Warn("malformed response", zap.String("addr", addr.IP.String()), zap.Error(fmt.Errorf("%w: %s", ErrBadResponse, err)))
			continue
		}

		ackFrame := protocol.NewAckCommand(resp.Seq).Encode()

		if resp.Seq < pd.seq {
			// Response for a sequence number from an earlier transaction:
			// ACK it anyway so the server's retry set drains, but don't
			// treat it as this transaction's answer.
			c.log.Debug("dropping response", zap.String("addr", addr.IP.String()), zap.Error(ErrStaleResponse))
			_ = c.socket.SendTo(addr, ackFrame)
			continue
		}

		if resp.Seq > pd.seq {
			c.log.Debug("dropping response", zap.String("addr", addr.IP.String()), zap.Error(ErrFutureResponse))
			_ = c.socket.SendTo(addr, ackFrame)
			continue
		}

		if pd.resp == nil {
			pd.resp = resp
			pendingCount--
		}

		_ = c.socket.SendTo(addr, ackFrame)
	}

	return responsesOf(byKey), errs
}

// retransmitDue resends to every still-pending peer whose retry clock has
// elapsed. In broadcast mode a single datagram reaches every target, so it
// sends at most once per round (keyed off the earliest-due peer) rather
// than once per pending peer, and then reseeds every pending peer's retry
// clock together, matching the single-broadcast seeding done before the
// loop starts.
func (c *Coordinator) retransmitDue(byKey map[string]*pending, broadcast bool, send func(*pending)) {
	now := time.Now()

	if broadcast {
		var due *pending
		for _, pd := range byKey {
			if pd.resp == nil && now.After(pd.nextRetryAt) {
				due = pd
				break
			}
		}
		if due == nil {
			return
		}

		send(due)
		for _, pd := range byKey {
			if pd.resp == nil {
				pd.nextRetryAt = due.nextRetryAt
			}
		}
		return
	}

	for _, pd := range byKey {
		if pd.resp == nil && now.After(pd.nextRetryAt) {
			send(pd)
		}
	}
}

func responsesOf(byKey map[string]*pending) map[string]*protocol.Response {
	out := make(map[string]*protocol.Response, len(byKey))
	for key, pd := range byKey {
		if pd.resp != nil {
			out[key] = pd.resp
		}
	}
	return out
}

func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// FleetError aggregates per-peer failures from a fleet-wide operation.
// Errs maps each failing peer's address to its error; Error() combines
// them with go.uber.org/multierr, each wrapped in a ServerError. FleetError
// has no Unwrap method, so per-peer causes are reached through Errs.
type FleetError struct {
	Errs map[string]error
}

func (e *FleetError) Error() string {
	var combined error
	for addr, err := range e.Errs {
		combined = multierr.Append(combined, newServerError(&net.UDPAddr{IP: net.ParseIP(addr)}, err))
	}
	return combined.Error()
}

func newFleetError(errs map[string]error) error {
	if len(errs) == 0 {
		return nil
	}
	return &FleetError{Errs: errs}
}

// simpleCommand runs a fleet-wide operation that expects a bare OK/ERROR
// response with no data section, returning per-peer failures aggregated
// into a FleetError (nil if every peer succeeded).
func (c *Coordinator) simpleCommand(
	ctx context.Context,
	addrs []string,
	frame func(peer *fleet.Peer, seq uint32) []byte,
) error {
	targets, err := c.resolveTargets(addrs)
	if err != nil {
		return err
	}

	resps, errs := c.transact(ctx, targets, len(addrs) == 0, frame)

	for key, resp := range resps {
		if respErr := resp.ErrorOrNil(); respErr != nil {
			errs[key] = fmt.Errorf("%w: %s", ErrServer, respErr)
		}
	}

	return newFleetError(errs)
}

// Resolution sets the camera resolution across the named peers (all known
// peers if addrs is empty).
func (c *Coordinator) Resolution(ctx context.Context, width, height int, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewResolutionCommand(seq, width, height).Encode()
	})
}

// Framerate sets the camera framerate across the named peers.
func (c *Coordinator) Framerate(ctx context.Context, rate *big.Rat, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewFramerateCommand(seq, rate).Encode()
	})
}

// AWB sets auto white balance mode and optional fixed gains.
func (c *Coordinator) AWB(ctx context.Context, mode string, red, blue *big.Rat, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewAwbCommand(seq, mode, red, blue).Encode()
	})
}

// Exposure sets exposure mode and optional fixed speed (in milliseconds).
func (c *Coordinator) Exposure(ctx context.Context, mode string, speed float64, hasSpeed bool, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewExposureCommand(seq, mode, speed, hasSpeed).Encode()
	})
}

// ISO sets sensor ISO (0 = auto).
func (c *Coordinator) ISO(ctx context.Context, iso int, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewIsoCommand(seq, iso).Encode()
	})
}

// Metering sets the metering mode.
func (c *Coordinator) Metering(ctx context.Context, mode string, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewMeteringCommand(seq, mode).Encode()
	})
}

// Levels sets brightness, contrast, saturation, and exposure compensation.
func (c *Coordinator) Levels(ctx context.Context, brightness, contrast, saturation, exposure int, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewLevelsCommand(seq, brightness, contrast, saturation, exposure).Encode()
	})
}

// Flip sets horizontal/vertical image flip.
func (c *Coordinator) Flip(ctx context.Context, horizontal, vertical bool, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewFlipCommand(seq, horizontal, vertical).Encode()
	})
}

// AGC sets the automatic gain control mode, a distinct setting from AWB.
func (c *Coordinator) AGC(ctx context.Context, mode string, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewAgcCommand(seq, mode).Encode()
	})
}

// Denoise toggles software denoising.
func (c *Coordinator) Denoise(ctx context.Context, enabled bool, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewDenoiseCommand(seq, enabled).Encode()
	})
}

// Quality sets the JPEG capture quality, a persistent camera setting.
func (c *Coordinator) Quality(ctx context.Context, quality int, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewQualityCommand(seq, quality).Encode()
	})
}

// Blink pulses the peers' camera LEDs.
func (c *Coordinator) Blink(ctx context.Context, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewBlinkCommand(seq).Encode()
	})
}

// Clear discards every stored image on the named peers.
func (c *Coordinator) Clear(ctx context.Context, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewClearCommand(seq).Encode()
	})
}

// Capture triggers image capture, optionally synchronised to an absolute
// UNIX timestamp so a broadcast CAPTURE lands near-simultaneously across
// the fleet.
func (c *Coordinator) Capture(ctx context.Context, count, videoPort int, sync *float64, addrs ...string) error {
	return c.simpleCommand(ctx, addrs, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewCaptureCommand(seq, count, videoPort, sync).Encode()
	})
}

// Status returns the parsed STATUS record for every responsive named peer,
// plus any cross-fleet discrepancies noticed along the way (§4.3).
func (c *Coordinator) Status(ctx context.Context, addrs ...string) (*StatusReport, error) {
	targets, err := c.resolveTargets(addrs)
	if err != nil {
		return nil, err
	}

	resps, errs := c.transact(ctx, targets, len(addrs) == 0, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewStatusCommand(seq).Encode()
	})

	statuses := make(map[string]Status, len(resps))
	for key, resp := range resps {
		if respErr := resp.ErrorOrNil(); respErr != nil {
			errs[key] = fmt.Errorf("%w: %s", ErrServer, respErr)
			continue
		}
		info, err := protocol.DecodeStatus(resp.Data)
		if err != nil {
			errs[key] = fmt.Errorf("%w: %s", ErrBadResponse, err)
			continue
		}
		statuses[key] = *info
	}

	report := &StatusReport{
		Statuses:      statuses,
		Discrepancies: aggregateStatus(statuses, c.cfg.TimeDelta),
	}

	return report, newFleetError(errs)
}

// List enumerates stored images on every named peer.
func (c *Coordinator) List(ctx context.Context, addrs ...string) (map[string][]protocol.ListEntry, error) {
	targets, err := c.resolveTargets(addrs)
	if err != nil {
		return nil, err
	}

	resps, errs := c.transact(ctx, targets, len(addrs) == 0, func(_ *fleet.Peer, seq uint32) []byte {
		return protocol.NewListCommand(seq).Encode()
	})

	out := make(map[string][]protocol.ListEntry, len(resps))
	for key, resp := range resps {
		if respErr := resp.ErrorOrNil(); respErr != nil {
			errs[key] = fmt.Errorf("%w: %s", ErrServer, respErr)
			continue
		}
		entries, err := protocol.DecodeList(resp.Data)
		if err != nil {
			errs[key] = fmt.Errorf("%w: %s", ErrBadResponse, err)
			continue
		}
		out[key] = entries
	}

	return out, newFleetError(errs)
}

// Find broadcasts HELLO and adds up to n newly discovered peers to the
// fleet, returning as soon as n responses arrive or the timeout elapses
// (§4.3, "find(n)").
func (c *Coordinator) Find(ctx context.Context, n int) ([]*fleet.Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ts := float64(time.Now().UnixNano()) / 1e9
	const seq = protocol.MinSeq
	frame := protocol.NewHelloCommand(seq, ts).Encode()

	if err := c.socket.Broadcast(c.cfg.CIDR, c.cfg.Port, frame); err != nil {
		return nil, fmt.Errorf("broadcast HELLO: %w", err)
	}

	nextRetry := time.Now().Add(randomDelay(c.cfg.RetryMin, c.cfg.RetryMax))

	var found []*fleet.Peer
	seen := make(map[string]bool)
	buf := make([]byte, 65536)

	for len(found) < n {
		select {
		case <-ctx.Done():
			return found, nil

		default:
		}

		if time.Now().After(nextRetry) {
			_ = c.socket.Broadcast(c.cfg.CIDR, c.cfg.Port, frame)
			nextRetry = time.Now().Add(randomDelay(c.cfg.RetryMin, c.cfg.RetryMax))
		}

		_ = c.socket.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		sz, addr, err := c.socket.Recv(buf)
		if err != nil {
			continue
		}

		key := addr.IP.String()
		if seen[key] {
			continue
		}

		resp, err := protocol.ReadResponse(bytes.NewReader(buf[:sz]))
		if err != nil || resp.Seq != seq {
			c.log.Debug("rejecting hello response", zap.String("addr", key), zap.Error(fmt.Errorf("%w: malformed or stale response", ErrHello)))
			continue
		}
		if respErr := resp.ErrorOrNil(); respErr != nil {
			c.log.Warn("rejecting hello response", zap.String("addr", key), zap.Error(fmt.Errorf("%w: %s", ErrHello, respErr)))
			continue
		}

		version, err := protocol.DecodeHello(resp.Data)
		if err != nil {
			c.log.Debug("rejecting hello response", zap.String("addr", key), zap.Error(fmt.Errorf("%w: %s", ErrHello, err)))
			continue
		}
		if version != protocol.Version {
			c.log.Warn("rejecting peer with mismatched protocol version",
				zap.String("addr", key), zap.String("version", version),
				zap.Error(fmt.Errorf("%w: got %s, want %s", ErrWrongVersion, version, protocol.Version)))
			continue
		}

		seen[key] = true
		peer, err := c.peers.Add(addr, true)
		if err != nil {
			continue
		}
		peer.ResetSession(seq, ts)

		_ = c.socket.SendTo(addr, protocol.NewAckCommand(seq).Encode())

		found = append(found, peer)
	}

	return found, nil
}
