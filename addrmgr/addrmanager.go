// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/crypto/rand"

	"github.com/davidgumberg/bitcoin/wire"
)

const (
	// needAddressThreshold is the number of addresses under which the
	// address manager will claim to need more addresses.
	needAddressThreshold = 1000

	// dumpAddressInterval is the interval used to dump the address
	// cache to the database for future use.
	dumpAddressInterval = time.Minute * 10

	// numMissingDays is the number of days before which we assume an
	// address has vanished if we have not seen it announced in that
	// long.
	numMissingDays = 30

	// numRetries is the number of tried without a single success
	// before we assume an address is bad.
	numRetries = 3

	// maxFailures is the maximum number of failures we will accept
	// without a success before considering an address bad.
	maxFailures = 5

	// minBadDays is the number of days since the last success before
	// we will consider evicting an address.
	minBadDays = 7
)

// AddrManager provides a concurrency safe address manager for caching
// potential peers on the network.
type AddrManager struct {
	// mtx is used to ensure safe concurrent access to fields on an
	// instance of the address manager.
	mtx sync.Mutex

	// db is the database the address manager's serialized state is
	// saved to and loaded from.  It is nil when the address manager
	// was created without a data directory, in which case the state is
	// not persisted at all.
	db *peersDB

	// lookupFunc is a function provided to the address manager that is
	// used to perform DNS lookups for a given hostname.
	// The provided function MUST be safe for concurrent access.
	lookupFunc func(string) ([]net.IP, error)

	// addrIndex maintains an index of all addresses known to the
	// address manager.  The key is a unique string representation of
	// the underlying network address.
	addrIndex map[string]*KnownAddress

	// addrChanged signals whether the address manager needs to have
	// its state serialized and saved to the database.
	addrChanged bool

	// started signals whether the address manager has been started.
	// Its value is 1 or more if started.
	started int32

	// shutdown signals whether a shutdown of the address manager has
	// been initiated.  Its value is 1 or more if a shutdown is done or
	// in progress.
	shutdown int32

	// The following fields are used for lifecycle management of the
	// address manager.
	wg   sync.WaitGroup
	quit chan struct{}
}

// updateAddress is a helper function to either update an address
// already known to the address manager, or to add the address if not
// already known.
func (a *AddrManager) updateAddress(netAddr, srcAddr *NetAddress) {
	// Filter out non-routable addresses.  Note that non-routable also
	// includes invalid and local addresses.
	if !netAddr.IsRoutable() {
		return
	}

	addrKey := netAddr.Key()
	ka := a.find(netAddr)
	if ka != nil {
		// Update the last seen time.
		if netAddr.Timestamp.After(ka.na.Timestamp) {
			ka.mtx.Lock()
			naCopy := ka.na.Clone()
			naCopy.Timestamp = netAddr.Timestamp
			ka.na = naCopy
			ka.mtx.Unlock()
		}
		return
	}

	ka = &KnownAddress{na: netAddr, srcAddr: srcAddr}
	a.addrIndex[addrKey] = ka
	a.addrChanged = true

	log.Tracef("Added new address %s for a total of %d addresses",
		addrKey, len(a.addrIndex))
}

// AddAddresses adds new addresses to the address manager.  It enforces
// a max number of addresses and silently ignores duplicate addresses.
// It is safe for concurrent access.
func (a *AddrManager) AddAddresses(addrs []*NetAddress, srcAddr *NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	for _, na := range addrs {
		a.updateAddress(na, srcAddr)
	}
}

// AddAddress adds a new address to the address manager.  It enforces a
// max number of addresses and silently ignores duplicate addresses.
// It is safe for concurrent access.
func (a *AddrManager) AddAddress(addr, srcAddr *NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.updateAddress(addr, srcAddr)
}

// numAddresses returns the number of addresses known to the address
// manager.
//
// This function MUST be called with the address manager lock held.
func (a *AddrManager) numAddresses() int {
	return len(a.addrIndex)
}

// NumAddresses returns the number of addresses known to the address
// manager.
//
// This function is safe for concurrent access.
func (a *AddrManager) NumAddresses() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.numAddresses()
}

// IsEmpty returns whether or not the address manager has any addresses
// at all.
//
// This function is safe for concurrent access.
func (a *AddrManager) IsEmpty() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.numAddresses() == 0
}

// NeedMoreAddresses returns whether or not the address manager needs
// more addresses.
//
// This function is safe for concurrent access.
func (a *AddrManager) NeedMoreAddresses() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.numAddresses() < needAddressThreshold
}

// find returns the known address associated with the provided network
// address, or nil when it does not exist.
//
// This function MUST be called with the address manager lock held.
func (a *AddrManager) find(addr *NetAddress) *KnownAddress {
	return a.addrIndex[addr.Key()]
}

// GetAddress returns a single address that should be routable and has
// not recently been selected as non-viable.  It returns nil if there
// are no viable addresses.
//
// This function is safe for concurrent access.
func (a *AddrManager) GetAddress() *KnownAddress {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	viable := a.viableAddresses()
	if len(viable) == 0 {
		return nil
	}
	return viable[rand.IntN(len(viable))]
}

// viableAddresses returns all known addresses that are not considered
// bad.
//
// This function MUST be called with the address manager lock held.
func (a *AddrManager) viableAddresses() []*KnownAddress {
	viable := make([]*KnownAddress, 0, len(a.addrIndex))
	for _, ka := range a.addrIndex {
		ka.mtx.Lock()
		bad := ka.isBad()
		ka.mtx.Unlock()
		if bad {
			continue
		}
		viable = append(viable, ka)
	}
	return viable
}

// SelectAddresses returns a randomized batch of up to count viable
// addresses for outbound connection attempts.  Fewer addresses are
// returned when the address manager does not know about enough viable
// ones.
//
// This function is safe for concurrent access.
func (a *AddrManager) SelectAddresses(count int) []*NetAddress {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	viable := a.viableAddresses()
	rand.Shuffle(len(viable), func(i, j int) {
		viable[i], viable[j] = viable[j], viable[i]
	})
	if count > len(viable) {
		count = len(viable)
	}
	addrs := make([]*NetAddress, 0, count)
	for _, ka := range viable[:count] {
		addrs = append(addrs, ka.NetAddress().Clone())
	}
	return addrs
}

// SelectAddressKeys returns the unique host:port keys of a randomized
// batch of up to count viable addresses.
//
// This function is safe for concurrent access.
func (a *AddrManager) SelectAddressKeys(count int) []string {
	addrs := a.SelectAddresses(count)
	keys := make([]string, 0, len(addrs))
	for _, na := range addrs {
		keys = append(keys, na.Key())
	}
	return keys
}

// Attempt increases the provided known address' attempt counter and
// updates the last attempt time.  If the address is unknown then an
// error is returned.
//
// This function is safe for concurrent access.
func (a *AddrManager) Attempt(addr *NetAddress) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ka := a.find(addr)
	if ka == nil {
		str := fmt.Sprintf("address %s not found", addr)
		return makeError(ErrAddressNotFound, str)
	}

	ka.mtx.Lock()
	ka.attempts++
	ka.lastattempt = time.Now()
	ka.mtx.Unlock()
	a.addrChanged = true
	return nil
}

// Connected marks the provided known address as connected and working
// at the current time.  If the address is unknown then an error is
// returned.
//
// This function is safe for concurrent access.
func (a *AddrManager) Connected(addr *NetAddress) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ka := a.find(addr)
	if ka == nil {
		str := fmt.Sprintf("address %s not found", addr)
		return makeError(ErrAddressNotFound, str)
	}

	// Update the time as long as it has been 20 minutes since last we
	// did so.
	now := time.Now()
	if now.After(ka.na.Timestamp.Add(time.Minute * 20)) {
		// ka.na is immutable, so replace it.
		ka.mtx.Lock()
		naCopy := ka.na.Clone()
		naCopy.Timestamp = now
		ka.na = naCopy
		ka.mtx.Unlock()
		a.addrChanged = true
	}
	return nil
}

// Good marks the provided known address as good.  This should be
// called after a successful outbound connection to a peer.  If the
// address is unknown then an error is returned.
//
// This function is safe for concurrent access.
func (a *AddrManager) Good(addr *NetAddress) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	ka := a.find(addr)
	if ka == nil {
		str := fmt.Sprintf("address %s not found", addr)
		return makeError(ErrAddressNotFound, str)
	}

	ka.mtx.Lock()
	now := time.Now()
	ka.lastsuccess = now
	ka.lastattempt = now
	ka.attempts = 0
	ka.tried = true
	ka.mtx.Unlock()
	a.addrChanged = true
	return nil
}

// HostToNetAddress parses and returns an address manager network
// address given a hostname in a supported format (IPv4, IPv6).  If the
// hostname cannot be immediately converted from a known address
// format, it will be resolved using the lookup function provided to
// the address manager.  If it cannot be resolved, an error is
// returned.
//
// This function is safe for concurrent access.
func (a *AddrManager) HostToNetAddress(host string, port uint16, services wire.ServiceFlag) (*NetAddress, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := a.lookupFunc(host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			str := fmt.Sprintf("no addresses found for %s", host)
			return nil, makeError(ErrMalformedAddress, str)
		}
		ip = ips[0]
	}

	return NewNetAddressIPPort(ip, port, services), nil
}

// addressHandler is the main handler for the address manager.  It must
// be run as a goroutine.
func (a *AddrManager) addressHandler() {
	dumpAddressTicker := time.NewTicker(dumpAddressInterval)
	defer dumpAddressTicker.Stop()

out:
	for {
		select {
		case <-dumpAddressTicker.C:
			a.savePeers()

		case <-a.quit:
			break out
		}
	}
	a.savePeers()
	a.wg.Done()
	log.Trace("Address handler done")
}

// Start begins the core address handler which manages a pool of known
// addresses, timeouts, and interval based writes.
func (a *AddrManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting address manager")

	// Load peers we already know about from the database.
	a.loadPeers()

	// Start the address ticker to save addresses periodically.
	a.wg.Add(1)
	go a.addressHandler()
}

// Stop gracefully shuts down the address manager by stopping the main
// handler.
func (a *AddrManager) Stop() error {
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Warnf("Address manager is already in the process of " +
			"shutting down")
		return nil
	}

	log.Infof("Address manager shutting down")
	close(a.quit)
	a.wg.Wait()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// New constructs a new address manager instance.  The address manager
// state is persisted to a database in the provided data directory, or
// kept purely in memory when the directory is empty.
//
// Use Start to begin processing asynchronous address updates.
func New(dataDir string, lookupFunc func(string) ([]net.IP, error)) (*AddrManager, error) {
	am := AddrManager{
		lookupFunc: lookupFunc,
		addrIndex:  make(map[string]*KnownAddress),
		quit:       make(chan struct{}),
	}
	if dataDir != "" {
		db, err := openPeersDB(dataDir)
		if err != nil {
			return nil, err
		}
		am.db = db
	}
	return &am, nil
}

// hostPortToNetAddress converts a host:port string into a network
// address, resolving the host portion with the provided lookup
// function when it is not a literal IP address.
func hostPortToNetAddress(hostPort string, lookupFunc func(string) ([]net.IP, error), services wire.ServiceFlag) (*NetAddress, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, makeError(ErrMalformedAddress, err.Error())
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		str := fmt.Sprintf("invalid port %q for address %q", portStr,
			hostPort)
		return nil, makeError(ErrMalformedAddress, str)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := lookupFunc(host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			str := fmt.Sprintf("no addresses found for %s", host)
			return nil, makeError(ErrMalformedAddress, str)
		}
		ip = ips[0]
	}
	return NewNetAddressIPPort(ip, uint16(port), services), nil
}

// ParseNetAddress converts the provided host:port string into a
// network address, resolving hostnames with the provided lookup
// function.  It is intended for addresses supplied via configuration,
// such as seed nodes.
func ParseNetAddress(hostPort string, lookupFunc func(string) ([]net.IP, error), services wire.ServiceFlag) (*NetAddress, error) {
	return hostPortToNetAddress(hostPort, lookupFunc, services)
}
