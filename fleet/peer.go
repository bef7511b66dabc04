// Package fleet tracks the set of servers a client coordinator knows
// about: their network address, sequencing state, and session timestamp.
package fleet

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
)

// ErrAlreadyDefined is returned by Peers.Add when an address is already
// known and redefinition was not requested. Callers that need to surface
// this distinctly (e.g. client.Coordinator.Add's RedefinedServerError) can
// match it with errors.Is.
var ErrAlreadyDefined = errors.New("server is already known")

// Peer is the client-side record of one known server (§3, "Peer record").
type Peer struct {
	// Addr is the server's UDP address.
	Addr *net.UDPAddr

	// Ordinal orders peers for display purposes, assigned in the order
	// they were added.
	Ordinal int

	mu sync.Mutex

	// nextSeq is the next outgoing sequence number for this peer,
	// monotonic, reset to seq+1 on every accepted HELLO.
	nextSeq uint32

	// sessionTS is the HELLO timestamp the server accepted for the
	// current session.
	sessionTS float64
}

// NewPeer creates a peer with its sequence number reset as if no HELLO had
// yet been exchanged.
func NewPeer(addr *net.UDPAddr, ordinal int) *Peer {
	return &Peer{Addr: addr, Ordinal: ordinal, nextSeq: 1}
}

// Key returns the string used to index this peer in Peers, the server's
// address without the port (commands arrive from a single source IP).
func (p *Peer) Key() string {
	return p.Addr.IP.String()
}

// NextSeq allocates and returns the next outgoing sequence number.
func (p *Peer) NextSeq() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq := p.nextSeq
	p.nextSeq++
	return seq
}

// ResetSession records a newly accepted HELLO: the peer's next sequence
// number becomes helloSeq+1 and its session timestamp is updated.
func (p *Peer) ResetSession(helloSeq uint32, ts float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSeq = helloSeq + 1
	p.sessionTS = ts
}

// SessionTimestamp returns the HELLO timestamp accepted for the current
// session.
func (p *Peer) SessionTimestamp() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sessionTS
}

// Peers is the coordinator's registry of known servers, keyed by address.
type Peers struct {
	mu      sync.RWMutex
	byAddr  map[string]*Peer
	ordinal int
}

// NewPeers creates an empty registry.
func NewPeers() *Peers {
	return &Peers{byAddr: make(map[string]*Peer)}
}

// Add registers addr as a known peer, or returns the existing peer if
// already present. redefine controls whether re-adding an address already
// in the registry is an error (mirrors the original CompoundPiRedefinedServer
// guard).
func (p *Peers) Add(addr *net.UDPAddr, redefine bool) (*Peer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := addr.IP.String()
	if existing, ok := p.byAddr[key]; ok {
		if !redefine {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyDefined, key)
		}
		return existing, nil
	}

	peer := NewPeer(addr, p.ordinal)
	p.ordinal++
	p.byAddr[key] = peer
	return peer, nil
}

// Remove drops a peer from the registry. It is not an error to remove an
// address that was never added.
func (p *Peers) Remove(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.byAddr, addr)
}

// Find looks up a peer by IP string.
func (p *Peers) Find(addr string) (*Peer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	peer, ok := p.byAddr[addr]
	return peer, ok
}

// All returns every known peer, ordered by Ordinal.
func (p *Peers) All() []*Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()

	peers := make([]*Peer, 0, len(p.byAddr))
	for _, peer := range p.byAddr {
		peers = append(peers, peer)
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Ordinal < peers[j].Ordinal
	})

	return peers
}

// Len returns the number of known peers.
func (p *Peers) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.byAddr)
}
