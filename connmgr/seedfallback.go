// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2019-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultFallbackWindow is the default amount of time to wait for
	// a successful connection to a peer selected from the address
	// manager before falling back to the configured seed nodes.
	DefaultFallbackWindow = 10 * time.Second

	// defaultSelectBatchSize is the default number of addresses
	// requested from the address store for the initial batch of
	// outbound connection attempts.
	defaultSelectBatchSize = 8
)

// ConnOutcome represents the result of a single outbound connection
// attempt.
type ConnOutcome uint8

const (
	// OutcomeSuccess indicates the connection attempt succeeded.
	OutcomeSuccess ConnOutcome = iota

	// OutcomeFailure indicates the connection attempt failed.
	OutcomeFailure

	// OutcomeTimeout indicates the connection attempt timed out
	// before it could be resolved either way.
	OutcomeTimeout
)

// String returns the ConnOutcome in human-readable form.
func (o ConnOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	}
	return "unknown"
}

// AddressStore defines the address database methods the seed fallback
// controller consumes.  The controller never mutates the store.
type AddressStore interface {
	// IsEmpty returns whether or not the store has any addresses at
	// all.
	IsEmpty() bool

	// SelectAddressKeys returns a batch of up to count unique
	// host:port address keys for outbound connection attempts.
	SelectAddressKeys(count int) []string
}

// bootstrapState describes where in the bootstrap cycle the seed
// fallback controller currently is.  A new cycle begins only on
// process restart.
type bootstrapState uint8

const (
	// stateInit is the state before Startup has run.
	stateInit bootstrapState = iota

	// stateSeededEmpty means the address store was empty at startup
	// and the seed nodes were queued immediately.  Terminal.
	stateSeededEmpty

	// stateNoPeers means the address store was empty and no seed
	// nodes are configured, so no outbound bootstrap is possible.
	// Terminal.
	stateNoPeers

	// stateWaiting means addresses from the store were queued and the
	// controller is waiting for either a successful connection or the
	// fallback deadline.
	stateWaiting

	// stateConnected means a connection succeeded before the fallback
	// deadline, so the seed nodes will not be queued this cycle.
	// Terminal.
	stateConnected

	// stateSeededTimeout means no connection succeeded before the
	// fallback deadline elapsed and the seed nodes were queued.
	// Terminal.
	stateSeededTimeout
)

// String returns the bootstrapState in human-readable form.
func (s bootstrapState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateSeededEmpty:
		return "seeded-empty"
	case stateNoPeers:
		return "no-peers"
	case stateWaiting:
		return "waiting"
	case stateConnected:
		return "connected"
	case stateSeededTimeout:
		return "seeded-timeout"
	}
	return "unknown"
}

// SeedFallbackConfig holds the configuration options related to the
// seed fallback controller.
type SeedFallbackConfig struct {
	// Seeds is the list of operator-configured seed node addresses in
	// host or host:port form.  It may be empty, in which case no seed
	// fallback is possible.
	Seeds []string

	// Store is the address database the controller bases its bootstrap
	// decision on.
	Store AddressStore

	// Queue is the address fetch queue the controller produces entries
	// for.
	Queue *AddrFetchQueue

	// FallbackWindow is the amount of time to wait for a successful
	// connection to a peer selected from the store before queueing the
	// seed nodes.  Defaults to DefaultFallbackWindow.
	FallbackWindow time.Duration

	// SelectBatchSize is the number of addresses requested from the
	// store at startup.  Defaults to a small constant suitable for the
	// initial outbound target.
	SelectBatchSize int

	// Clock is the time source used for the fallback deadline.  It
	// defaults to the real time clock and is primarily configurable so
	// tests can supply a mock.
	Clock clock.Clock
}

// SeedFallback is the single authoritative decision maker for whether
// and when the configured seed node addresses enter the connection
// pipeline.
//
// At startup it inspects the address store.  When the store is empty
// the seed nodes are queued immediately.  Otherwise a batch of stored
// addresses is queued and a fallback deadline is armed; the seed nodes
// are only queued if no connection succeeds before the deadline.
// Whichever way the cycle resolves, the seed nodes are queued at most
// once per process lifetime.
type SeedFallback struct {
	// mtx serializes every state transition.  Outcome reports, the
	// fallback timer, and startup all mutate the bootstrap state, so
	// they resolve through this single mutual exclusion domain.
	mtx sync.Mutex

	// cfg specifies the configuration of the controller and is set at
	// creation time and treated as immutable after that.
	cfg SeedFallbackConfig

	// The following fields make up the bootstrap cycle state.  They
	// must only be accessed with mtx held.
	//
	// state is the current bootstrap state.
	//
	// addrManEmpty records whether the store was empty when observed
	// at startup.
	//
	// anyConnectionSucceeded latches to true on the first successful
	// connection outcome and never resets within a cycle.
	//
	// seedAdded latches to true when the seed nodes are queued and
	// never resets within a cycle.
	state                  bootstrapState
	addrManEmpty           bool
	anyConnectionSucceeded bool
	seedAdded              bool

	// fallbackTimer is the armed fallback deadline, or nil when no
	// deadline is armed.  Cancellation on success is best effort; the
	// deadline handler re-checks the latched state regardless.
	fallbackTimer *clock.Timer

	// deadlineArmedAt is the time the fallback deadline was armed.
	deadlineArmedAt time.Time
}

// NewSeedFallback returns a new seed fallback controller with the
// provided configuration.
//
// Use Startup to run the bootstrap decision.
func NewSeedFallback(cfg *SeedFallbackConfig) (*SeedFallback, error) {
	if cfg.Store == nil {
		return nil, ErrStoreNil
	}
	if cfg.Queue == nil {
		return nil, ErrQueueNil
	}

	// Default to sane values.
	if cfg.FallbackWindow <= 0 {
		cfg.FallbackWindow = DefaultFallbackWindow
	}
	if cfg.SelectBatchSize <= 0 {
		cfg.SelectBatchSize = defaultSelectBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &SeedFallback{cfg: *cfg}, nil // Copy so caller can't mutate
}

// queueSeedsEmpty queues every configured seed node due to an empty
// address store at startup.
//
// This function MUST be called with the controller mutex held.
func (c *SeedFallback) queueSeedsEmpty() {
	for _, seed := range c.cfg.Seeds {
		c.cfg.Queue.Enqueue(seed, FromSeed)
		log.Infof("Empty addrman, adding seednode (%s) to addrfetch",
			seed)
	}
	c.seedAdded = true
}

// queueSeedsTimeout queues every configured seed node due to the
// fallback deadline elapsing without a successful connection.
//
// This function MUST be called with the controller mutex held.
func (c *SeedFallback) queueSeedsTimeout(elapsed int64) {
	for _, seed := range c.cfg.Seeds {
		c.cfg.Queue.Enqueue(seed, FromSeed)
		log.Infof("Couldn't connect to peers from addrman after %d "+
			"seconds. Adding seednode (%s) to addrfetch", elapsed, seed)
	}
	c.seedAdded = true
}

// Startup runs the bootstrap decision.  It must be called exactly once
// per process lifetime, before any connection attempts are scheduled.
// Subsequent calls are no-ops.
func (c *SeedFallback) Startup() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.state != stateInit {
		log.Warnf("Seed fallback startup invoked again in state %v",
			c.state)
		return
	}

	if c.cfg.Store.IsEmpty() {
		c.addrManEmpty = true

		// No fallback is possible without seed nodes.  The node must
		// rely on future inbound connections or manual intervention.
		if len(c.cfg.Seeds) == 0 {
			log.Warn("Empty addrman and no seednodes configured -- " +
				"no peers available to bootstrap from")
			c.state = stateNoPeers
			return
		}

		// The store cannot produce any candidates, so there is
		// nothing to wait for.  Queue the seed nodes unconditionally
		// and never arm the deadline.
		c.queueSeedsEmpty()
		c.state = stateSeededEmpty
		return
	}

	// Queue a batch of stored addresses for the normal outbound
	// connection flow.
	keys := c.cfg.Store.SelectAddressKeys(c.cfg.SelectBatchSize)
	for _, key := range keys {
		c.cfg.Queue.Enqueue(key, FromAddrMan)
	}
	log.Debugf("Queued %d addresses from addrman for outbound "+
		"connections", len(keys))
	c.state = stateWaiting

	// Arm the fallback deadline.  The policy is driven purely by
	// elapsed time rather than attempt counts since failures can be
	// near-instant or slow and counting would under- or over-trigger.
	if len(c.cfg.Seeds) > 0 {
		c.deadlineArmedAt = c.cfg.Clock.Now()
		c.fallbackTimer = c.cfg.Clock.AfterFunc(c.cfg.FallbackWindow,
			c.onFallbackDeadline)
	}
}

// OnConnectionOutcome records the result of an outbound connection
// attempt.  The first successful outcome cancels the fallback deadline
// and pins the seed nodes out of the connection pipeline for the rest
// of the cycle.  Repeated outcomes of any kind are no-ops with respect
// to the controller state.
func (c *SeedFallback) OnConnectionOutcome(addr string, outcome ConnOutcome) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	log.Tracef("Connection outcome for %s: %v", addr, outcome)

	// Failures and timeouts never influence the decision; the
	// fallback deadline alone governs it.
	if outcome != OutcomeSuccess {
		return
	}
	if c.anyConnectionSucceeded {
		return
	}
	c.anyConnectionSucceeded = true

	// Best-effort cancellation of the armed deadline.  The deadline
	// handler re-checks the latched state, so a timer that already
	// began firing still cannot queue the seed nodes.
	if c.fallbackTimer != nil {
		c.fallbackTimer.Stop()
		c.fallbackTimer = nil
	}

	if c.state == stateWaiting {
		c.state = stateConnected
		log.Debugf("Connected to %s from addrman before the seednode "+
			"fallback window elapsed", addr)
	}
}

// onFallbackDeadline is invoked when the armed fallback deadline fires.
// Cancellation of the timer on success is best effort, so the latched
// state is checked again here to guarantee a success delivered
// concurrently with the deadline never results in the seed nodes being
// queued.
func (c *SeedFallback) onFallbackDeadline() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.anyConnectionSucceeded || c.seedAdded || c.state != stateWaiting {
		return
	}

	elapsed := int64(c.cfg.Clock.Now().Sub(c.deadlineArmedAt) / time.Second)
	c.queueSeedsTimeout(elapsed)
	c.state = stateSeededTimeout
}

// SeedsAdded returns whether the seed nodes have been queued during
// this bootstrap cycle.
func (c *SeedFallback) SeedsAdded() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.seedAdded
}
