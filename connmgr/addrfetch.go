// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2019-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import "sync"

// Provenance describes where an address queued for an address fetch
// connection originated from.  It is used only for logging and
// metrics; queued entries are treated identically regardless of their
// provenance.
type Provenance uint8

const (
	// FromAddrMan indicates the address was selected from the address
	// manager.
	FromAddrMan Provenance = iota

	// FromSeed indicates the address is an operator-configured seed
	// node.
	FromSeed
)

// String returns the Provenance in human-readable form.
func (p Provenance) String() string {
	switch p {
	case FromAddrMan:
		return "addrman"
	case FromSeed:
		return "seednode"
	}
	return "unknown"
}

// FetchEntry pairs an address pending an outbound address fetch
// connection with its provenance.
type FetchEntry struct {
	// Addr is the address to connect to in host or host:port form,
	// exactly as it was provided by its source.
	Addr string

	// Provenance describes where the address came from.
	Provenance Provenance
}

// AddrFetchQueue is a deduplicated first-in first-out set of addresses
// pending an outbound address fetch connection.  Re-enqueueing an
// address that is already pending is a no-op.  Entries are consumed in
// insertion order and are never reprioritized by provenance.
//
// All methods are safe for concurrent access.
type AddrFetchQueue struct {
	mtx     sync.Mutex
	pending map[string]struct{}
	entries []FetchEntry
	signal  chan struct{}
}

// NewAddrFetchQueue returns a new empty address fetch queue.
func NewAddrFetchQueue() *AddrFetchQueue {
	return &AddrFetchQueue{
		pending: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds the provided address to the queue unless an entry for
// the same address is already pending.  It returns true when the
// address was added.
func (q *AddrFetchQueue) Enqueue(addr string, provenance Provenance) bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if _, ok := q.pending[addr]; ok {
		log.Tracef("Ignoring %s %s already pending addrfetch",
			provenance, addr)
		return false
	}
	q.pending[addr] = struct{}{}
	q.entries = append(q.entries, FetchEntry{
		Addr:       addr,
		Provenance: provenance,
	})

	// Wake up a consumer blocked on Signal.  The channel is buffered
	// so enqueueing never blocks when no consumer is listening.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes and returns all pending entries in insertion order.
func (q *AddrFetchQueue) Drain() []FetchEntry {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	entries := q.entries
	q.entries = nil
	for _, entry := range entries {
		delete(q.pending, entry.Addr)
	}
	return entries
}

// Len returns the number of pending entries.
func (q *AddrFetchQueue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return len(q.entries)
}

// Signal returns a channel that receives a value after entries have
// been enqueued.  It is intended for a single consuming goroutine that
// drains the queue whenever the channel fires.
func (q *AddrFetchQueue) Signal() <-chan struct{} {
	return q.signal
}
