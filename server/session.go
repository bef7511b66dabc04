package server

import (
	"sync"
	"time"
)

// seenCap bounds the per-session seen-seq set (§3 "a bounded set of
// recently-seen command sequence numbers"), evicting the oldest entry once
// full rather than growing without limit across a long-lived session.
const seenCap = 256

// cachedResponse is the encoded reply to a seq already processed this
// session, resent verbatim on a duplicate without re-executing the
// command (§4.4 "resend the cached response").
type cachedResponse struct {
	payload []byte
}

// Session is the server-side per-client-address record (§3 "Session
// state"). It is only ever mutated from the handler's dispatch loop; the
// retry sweep only reads snapshots of the retry set (held in retrySet,
// §5 "Shared-resource policy").
type Session struct {
	mu sync.Mutex

	baseSeq  uint32
	helloTS  float64
	lastSeen time.Time

	seenOrder []uint32
	seen      map[uint32]cachedResponse
}

func newSession(helloSeq uint32, helloTS float64) *Session {
	return &Session{
		baseSeq:  helloSeq,
		helloTS:  helloTS,
		lastSeen: time.Now(),
		seen:     make(map[uint32]cachedResponse),
	}
}

// acceptHello resets the session iff ts is strictly greater than the
// currently accepted HELLO timestamp, per §4.4's monotonic guard. It
// reports whether the reset happened.
func (s *Session) acceptHello(seq uint32, ts float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts <= s.helloTS {
		return false
	}

	s.baseSeq = seq
	s.helloTS = ts
	s.seenOrder = nil
	s.seen = make(map[uint32]cachedResponse)
	s.lastSeen = time.Now()

	return true
}

// lookup returns the cached response for seq, if this session has already
// processed it.
func (s *Session) lookup(seq uint32) (cachedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = time.Now()
	resp, ok := s.seen[seq]
	return resp, ok
}

// record remembers seq's response for future duplicate resends, evicting
// the oldest entry if the bounded set is full.
func (s *Session) record(seq uint32, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[seq]; !exists {
		s.seenOrder = append(s.seenOrder, seq)
		if len(s.seenOrder) > seenCap {
			oldest := s.seenOrder[0]
			s.seenOrder = s.seenOrder[1:]
			delete(s.seen, oldest)
		}
	}

	s.seen[seq] = cachedResponse{payload: payload}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSeen.Before(cutoff)
}

// sessions is the handler's map from client IP address (net.IP.String(),
// without the port) to Session, with idle eviction (§9 "Session state keyed by source
// address").
type sessions struct {
	mu sync.Mutex
	m  map[string]*Session
}

func newSessions() *sessions {
	return &sessions{m: make(map[string]*Session)}
}

func (s *sessions) getOrCreate(addr string, helloSeq uint32, helloTS float64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.m[addr]
	if !ok {
		sess := newSession(helloSeq, helloTS)
		s.m[addr] = sess
		return sess, true
	}

	reset := existing.acceptHello(helloSeq, helloTS)
	return existing, reset
}

func (s *sessions) find(addr string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.m[addr]
	return sess, ok
}

// evictIdle drops every session whose lastSeen predates cutoff.
func (s *sessions) evictIdle(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, sess := range s.m {
		if sess.idleSince(cutoff) {
			delete(s.m, addr)
		}
	}
}
