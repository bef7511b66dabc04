package server

import (
	"container/heap"
	"math/rand"
	"net"
	"sync"
	"time"
)

// retryEntry is one outstanding response awaiting its ACK (§4.4
// "Server-side retry"). deadline is when it should next be resent;
// expireAt is the absolute cutoff (the set's total timeout after the
// entry was added) after which it is dropped.
type retryEntry struct {
	addr     *net.UDPAddr
	seq      uint32
	payload  []byte
	deadline time.Time
	expireAt time.Time
	index    int // heap.Interface bookkeeping
}

// retryHeap orders entries by deadline, the single priority queue §9
// recommends in place of one timer per outstanding entry.
type retryHeap []*retryEntry

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *retryHeap) Push(x interface{}) {
	e := x.(*retryEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// retrySet tracks every response still awaiting an ACK, keyed by
// (ip, seq) so an ACK can cancel exactly one outstanding entry. Keyed
// on IP rather than the full host:port, since commands arrive from a
// single source IP and the dispatch loop only has the IP to hand when
// it sees an ACK.
type retrySet struct {
	mu      sync.Mutex
	byKey   map[retryKey]*retryEntry
	pending retryHeap

	retryMin, retryMax time.Duration
	totalTimeout       time.Duration
}

type retryKey struct {
	addr string
	seq  uint32
}

func newRetrySet(retryMin, retryMax, totalTimeout time.Duration) *retrySet {
	return &retrySet{
		byKey:        make(map[retryKey]*retryEntry),
		retryMin:     retryMin,
		retryMax:     retryMax,
		totalTimeout: totalTimeout,
	}
}

// add registers payload as awaiting an ACK from addr for seq, scheduling
// its first retransmit.
func (r *retrySet) add(addr *net.UDPAddr, seq uint32, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	e := &retryEntry{
		addr:     addr,
		seq:      seq,
		payload:  payload,
		deadline: now.Add(randomRetryDelay(r.retryMin, r.retryMax)),
		expireAt: now.Add(r.totalTimeout),
	}

	key := retryKey{addr: addr.IP.String(), seq: seq}
	if old, ok := r.byKey[key]; ok {
		old.payload = payload
		old.deadline = e.deadline
		old.expireAt = e.expireAt
		heap.Fix(&r.pending, old.index)
		return
	}

	r.byKey[key] = e
	heap.Push(&r.pending, e)
}

// ack cancels the outstanding entry for (ip, seq), if any.
func (r *retrySet) ack(ip string, seq uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := retryKey{addr: ip, seq: seq}
	e, ok := r.byKey[key]
	if !ok {
		return
	}

	delete(r.byKey, key)
	heap.Remove(&r.pending, e.index)
}

// due pops every entry whose deadline has passed and is not yet expired,
// rescheduling it for another retry round; expired entries are dropped
// and not returned.
func (r *retrySet) due(now time.Time) []*retryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*retryEntry

	for r.pending.Len() > 0 && r.pending[0].deadline.Before(now) {
		e := heap.Pop(&r.pending).(*retryEntry)
		key := retryKey{addr: e.addr.IP.String(), seq: e.seq}

		if now.After(e.expireAt) {
			delete(r.byKey, key)
			continue
		}

		e.deadline = now.Add(randomRetryDelay(r.retryMin, r.retryMax))
		heap.Push(&r.pending, e)
		out = append(out, e)
	}

	return out
}

func randomRetryDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
