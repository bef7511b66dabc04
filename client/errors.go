package client

import (
	"fmt"
	"net"
)

// The error taxonomy below mirrors compoundpi's original exc.py hierarchy,
// expressed as Go error values instead of an exception class tree: a
// ServerError wraps the address it concerns, and sentinel Is-comparable
// causes distinguish the cases the coordinator needs to branch on.

// ServerError reports a failure that concerns one specific peer address,
// as opposed to a fleet-wide failure.
type ServerError struct {
	Addr string
	Err  error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Addr, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

func newServerError(addr *net.UDPAddr, err error) *ServerError {
	return &ServerError{Addr: addr.IP.String(), Err: err}
}

// Sentinel causes, compared with errors.Is against a *ServerError's
// wrapped Err.
var (
	// ErrBadResponse: a response frame failed to decode.
	ErrBadResponse = fmt.Errorf("malformed response")

	// ErrFutureResponse: a response carried a sequence number the
	// coordinator never allocated.
	ErrFutureResponse = fmt.Errorf("response for an unissued sequence number")

	// ErrStaleResponse: a response arrived for a sequence number lower than
	// the one the current transaction issued to that peer.
	ErrStaleResponse = fmt.Errorf("response for an already-resolved sequence number")

	// ErrWrongPort: a datagram arrived from a port other than the
	// protocol's registered port.
	ErrWrongPort = fmt.Errorf("response from unexpected source port")

	// ErrUnknownAddress: a datagram arrived from an address the
	// coordinator never sent a command to.
	ErrUnknownAddress = fmt.Errorf("response from an unsolicited address")

	// ErrWrongVersion: HELLO succeeded but the server's protocol version
	// does not match the client's exactly.
	ErrWrongVersion = fmt.Errorf("protocol version mismatch")

	// ErrHello: a HELLO attempt failed or the server never replied.
	ErrHello = fmt.Errorf("hello failed")

	// ErrServer: the server returned an ERROR response.
	ErrServer = fmt.Errorf("server reported an error")

	// ErrSendTimeout: a peer sent no response to a command within the
	// coordinator's deadline.
	ErrSendTimeout = fmt.Errorf("timed out waiting for a response")
)

// NoServersError is returned by fleet-wide operations when no peers are
// known at all.
type NoServersError struct{}

func (NoServersError) Error() string {
	return "no servers defined"
}

// UndefinedServersError is returned when an operation names addresses that
// are not in the peer registry.
type UndefinedServersError struct {
	Addrs []string
}

func (e *UndefinedServersError) Error() string {
	return fmt.Sprintf("undefined servers: %v", e.Addrs)
}

// RedefinedServerError is returned by Add when an address is already known
// and redefinition was not requested.
type RedefinedServerError struct {
	Addr string
}

func (e *RedefinedServerError) Error() string {
	return fmt.Sprintf("server %s is already defined", e.Addr)
}
