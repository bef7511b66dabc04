package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// UDPOptions configures a UDPSocket.
type UDPOptions struct {
	// Host is the address to bind to.
	Host string

	// Port is the UDP port to bind to; 0 requests an ephemeral port. The
	// protocol's registered port, 5647, is supplied by the caller's
	// configuration.
	Port int

	Log *zap.Logger
}

// UDPSocket wraps a broadcast-capable UDP socket shared by the client
// coordinator (to fan commands out) and the server dispatch loop (to
// receive them).
type UDPSocket struct {
	conn *net.UDPConn
	log  *zap.Logger
}

// NewUDPSocket binds a UDP socket with SO_BROADCAST enabled, reusing
// go_reuseport's packet listener so multiple coordinators (or, in tests,
// multiple fake servers) can share a bind address.
func NewUDPSocket(options UDPOptions) (*UDPSocket, error) {
	addr := net.JoinHostPort(options.Host, strconv.Itoa(options.Port))

	pc, err := reuseport.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp socket on %s: %w", addr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("reuseport did not return a UDP connection")
	}

	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable SO_BROADCAST: %w", err)
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &UDPSocket{conn: conn, log: log}, nil
}

func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}

	return sockErr
}

// SendTo transmits payload to a single unicast destination.
func (s *UDPSocket) SendTo(addr *net.UDPAddr, payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, addr)
	if err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}

	return nil
}

// Broadcast transmits payload to the subnet broadcast address derived from
// cidr, on the given port.
func (s *UDPSocket) Broadcast(cidr *net.IPNet, port int, payload []byte) error {
	bcast, err := BroadcastAddress(cidr)
	if err != nil {
		return err
	}

	return s.SendTo(&net.UDPAddr{IP: bcast, Port: port}, payload)
}

// Recv blocks (up to the configured read deadline, if any) for the next
// datagram, returning its payload and source address.
func (s *UDPSocket) Recv(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}

	return n, addr, nil
}

// SetReadDeadline bounds the next call to Recv.
func (s *UDPSocket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// LocalAddr returns the address the socket is bound to.
func (s *UDPSocket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the underlying socket.
func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

// BroadcastAddress computes the subnet broadcast address (network address
// with all host bits set) for cidr.
func BroadcastAddress(cidr *net.IPNet) (net.IP, error) {
	ip4 := cidr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("only IPv4 CIDRs are supported")
	}

	mask := cidr.Mask
	bcast := make(net.IP, len(ip4))
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask[i]
	}

	return bcast, nil
}
