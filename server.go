// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/davidgumberg/bitcoin/addrmgr"
	"github.com/davidgumberg/bitcoin/connmgr"
	"github.com/davidgumberg/bitcoin/wire"
)

const (
	// connectionRetryInterval is the base amount of time to wait in between
	// retries when connecting to persistent peers.  It is adjusted by the
	// number of retries such that there is a retry backoff.
	connectionRetryInterval = time.Second * 5

	// defaultTargetOutbound is the default number of outbound connections
	// to maintain.
	defaultTargetOutbound = 8
)

// simpleAddr implements the net.Addr interface with two struct fields.
type simpleAddr struct {
	net, addr string
}

// String returns the address.
//
// This is part of the net.Addr interface.
func (a simpleAddr) String() string {
	return a.addr
}

// Network returns the network.
//
// This is part of the net.Addr interface.
func (a simpleAddr) Network() string {
	return a.net
}

// server provides a bitcoin peer bootstrap server for handling
// communications to and from peers.
type server struct {
	chainParams    *params
	addrManager    *addrmgr.AddrManager
	connManager    *connmgr.ConnManager
	seedFallback   *connmgr.SeedFallback
	addrFetchQueue *connmgr.AddrFetchQueue

	// peerState houses connected peer counts used for logging and for
	// limiting inbound connections.  It is protected by its embedded
	// mutex.
	peerState struct {
		sync.Mutex
		inbound  int
		outbound int
	}

	wg sync.WaitGroup
}

// inboundPeerConnected is invoked by the connection manager when a new
// inbound connection is accepted.
func (s *server) inboundPeerConnected(conn net.Conn) {
	s.peerState.Lock()
	s.peerState.inbound++
	count := s.peerState.inbound
	s.peerState.Unlock()

	if count > cfg.MaxPeers {
		srvrLog.Infof("Max peers reached [%d] - disconnecting peer %s",
			cfg.MaxPeers, conn.RemoteAddr())
		conn.Close()
		s.peerState.Lock()
		s.peerState.inbound--
		s.peerState.Unlock()
		return
	}

	srvrLog.Debugf("New inbound connection from %s", conn.RemoteAddr())
}

// outboundPeerConnected is invoked by the connection manager when a new
// outbound connection is established.  It updates the address manager
// bookkeeping for the address and reports the successful outcome to the
// seed fallback controller.
func (s *server) outboundPeerConnected(c *connmgr.ConnReq, conn net.Conn) {
	addrKey := c.Addr.String()
	srvrLog.Debugf("New outbound connection to %s", addrKey)

	s.peerState.Lock()
	s.peerState.outbound++
	s.peerState.Unlock()

	// The address will not be known when it came from a configured seed
	// node or a manually specified peer rather than the database.
	na, err := netAddrToNetAddress(c.Addr)
	if err == nil {
		s.addrManager.AddAddress(na, na)
		if err := s.addrManager.Connected(na); err != nil &&
			!errors.Is(err, addrmgr.ErrAddressNotFound) {

			srvrLog.Errorf("Failed to mark %s connected: %v", addrKey, err)
		}
		if err := s.addrManager.Good(na); err != nil &&
			!errors.Is(err, addrmgr.ErrAddressNotFound) {

			srvrLog.Errorf("Failed to mark %s good: %v", addrKey, err)
		}
	}

	s.seedFallback.OnConnectionOutcome(addrKey, connmgr.OutcomeSuccess)

	// Address fetch connections exist only to reach the peer long enough
	// to learn more addresses, so release them once established.
	if c.AddrFetch {
		srvrLog.Debugf("Releasing addrfetch connection to %s", addrKey)
		s.connManager.Remove(c.ID())
		s.peerState.Lock()
		s.peerState.outbound--
		s.peerState.Unlock()
	}
}

// outboundPeerFailed is invoked by the connection manager when an outbound
// connection attempt fails.  It classifies the failure and reports the
// outcome to the seed fallback controller.
func (s *server) outboundPeerFailed(c *connmgr.ConnReq, err error) {
	outcome := connmgr.OutcomeFailure
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout()) {

		outcome = connmgr.OutcomeTimeout
	}

	s.seedFallback.OnConnectionOutcome(c.Addr.String(), outcome)
}

// outboundPeerDisconnected is invoked by the connection manager when an
// outbound connection is disconnected.
func (s *server) outboundPeerDisconnected(c *connmgr.ConnReq) {
	if c.AddrFetch {
		return
	}
	s.peerState.Lock()
	s.peerState.outbound--
	s.peerState.Unlock()
}

// addrFetchHandler consumes the address fetch queue and schedules a
// connection attempt for every drained entry.  It must be run as a
// goroutine.
func (s *server) addrFetchHandler(ctx context.Context) {
out:
	for {
		select {
		case <-s.addrFetchQueue.Signal():
			for _, entry := range s.addrFetchQueue.Drain() {
				addr := normalizeAddress(entry.Addr,
					s.chainParams.DefaultPort)
				netAddr, err := addrStringToNetAddr(addr, cfg.lookup)
				if err != nil {
					srvrLog.Warnf("Unable to resolve %s %s: %v",
						entry.Provenance, entry.Addr, err)
					continue
				}

				srvrLog.Debugf("Attempting addrfetch connection to %s "+
					"(%s)", addr, entry.Provenance)
				s.markAttempt(addr)
				go s.connManager.Connect(ctx, &connmgr.ConnReq{
					Addr:      netAddr,
					AddrFetch: true,
				})
			}

		case <-ctx.Done():
			break out
		}
	}

	s.wg.Done()
	srvrLog.Trace("Address fetch handler done")
}

// markAttempt records a connection attempt for the provided host:port
// address key with the address manager.  Addresses the manager does not
// know about, such as configured seed nodes, are ignored.
func (s *server) markAttempt(addrKey string) {
	na, err := addrmgr.ParseNetAddress(addrKey, cfg.lookup, 0)
	if err != nil {
		return
	}
	if err := s.addrManager.Attempt(na); err != nil &&
		!errors.Is(err, addrmgr.ErrAddressNotFound) {

		srvrLog.Errorf("Failed to mark %s attempted: %v", addrKey, err)
	}
}

// seedFromDNS performs DNS seeding when enabled to populate the address
// manager with network peers to connect to.
func (s *server) seedFromDNS() {
	if cfg.DisableDNSSeed || len(s.chainParams.DNSSeeds) == 0 {
		return
	}

	port, err := strconv.ParseUint(s.chainParams.DefaultPort, 10, 16)
	if err != nil {
		srvrLog.Errorf("Invalid default port %q: %v",
			s.chainParams.DefaultPort, err)
		return
	}
	connmgr.SeedFromDNS(s.chainParams.DNSSeeds, uint16(port), cfg.lookup,
		func(addrs []*addrmgr.NetAddress) {
			// Use the first address as the source of the rest.  This
			// is a bit weird, but the DNS seed does speak for them.
			s.addrManager.AddAddresses(addrs, addrs[0])
		})
}

// Run starts the server and blocks until the provided context is
// cancelled.  This entails bootstrapping outbound connections and
// accepting connections from peers.
func (s *server) Run(ctx context.Context) {
	srvrLog.Trace("Starting server")

	// Start the address manager which loads previously known peers from
	// the database and periodically persists new ones.
	s.addrManager.Start()

	// Start the address fetch queue consumer before the bootstrap
	// decision runs so queued entries are dialed promptly.
	s.wg.Add(1)
	go s.addrFetchHandler(ctx)

	// Run the bootstrap decision exactly once, before any automatic
	// connection attempts are scheduled.  This decides whether the
	// configured seed nodes enter the connection pipeline immediately,
	// after the fallback window, or not at all.
	if len(cfg.ConnectPeers) == 0 {
		s.seedFallback.Startup()
	} else {
		srvrLog.Debugf("Skipping seednode bootstrap in connect-only mode")
	}

	// Query the DNS seeds and start the connection manager.
	s.wg.Add(1)
	go func() {
		s.seedFromDNS()
		s.connManager.Run(ctx)
		s.wg.Done()
	}()

	// Start up persistent peers.
	permanentPeers := cfg.ConnectPeers
	if len(permanentPeers) == 0 {
		permanentPeers = cfg.AddPeers
	}
	for _, addr := range permanentPeers {
		netAddr, err := addrStringToNetAddr(addr, cfg.lookup)
		if err != nil {
			srvrLog.Warnf("Unable to resolve peer %s: %v", addr, err)
			continue
		}

		go s.connManager.Connect(ctx, &connmgr.ConnReq{
			Addr:      netAddr,
			Permanent: true,
		})
	}

	// Shutdown the server when the context is cancelled.
	<-ctx.Done()
	srvrLog.Warnf("Server shutting down")
	if err := s.addrManager.Stop(); err != nil {
		srvrLog.Errorf("Failed to stop address manager: %v", err)
	}
	s.wg.Wait()
	srvrLog.Trace("Server stopped")
}

// addrStringToNetAddr takes an address in the form of 'host:port' and
// returns a net.Addr which maps to the original address with any host
// names resolved to IP addresses using the provided lookup function.
func addrStringToNetAddr(addr string, lookup func(string) ([]net.IP, error)) (net.Addr, error) {
	host, strPort, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(strPort)
	if err != nil {
		return nil, err
	}

	// Skip if host is already an IP address.
	if ip := net.ParseIP(host); ip != nil {
		return &net.TCPAddr{
			IP:   ip,
			Port: port,
		}, nil
	}

	// Attempt to look up an IP address associated with the parsed host.
	ips, err := lookup(host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}

	return &net.TCPAddr{
		IP:   ips[0],
		Port: port,
	}, nil
}

// netAddrToNetAddress converts the provided net.Addr into an address
// manager network address.
func netAddrToNetAddress(addr net.Addr) (*addrmgr.NetAddress, error) {
	host, strPort, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(strPort, 10, 16)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip %q", host)
	}
	return addrmgr.NewNetAddressIPPort(ip, uint16(port),
		wire.SFNodeNetwork), nil
}

// initListeners initializes the configured net listeners.  It also
// properly detects addresses which apply to "all interfaces" and adds
// the listener to both IPv4 and IPv6.
func initListeners(listenAddrs []string) ([]net.Listener, error) {
	netAddrs := make([]net.Addr, 0, len(listenAddrs)*2)
	for _, addr := range listenAddrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			// Shouldn't happen due to already being normalized.
			return nil, err
		}

		// Empty host is both IPv4 and IPv6.
		if host == "" {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
			continue
		}

		// Parse the IP.
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("'%s' is not a valid IP address", host)
		}

		// To4 returns nil when the IP is not an IPv4 address, so use
		// this determine the address type.
		if ip.To4() == nil {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
		} else {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
		}
	}

	listeners := make([]net.Listener, 0, len(netAddrs))
	for _, addr := range netAddrs {
		listener, err := net.Listen(addr.Network(), addr.String())
		if err != nil {
			srvrLog.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}
	if len(listeners) == 0 {
		return nil, errors.New("no valid listen address")
	}

	return listeners, nil
}

// newServer returns a new server configured to manage the peer bootstrap
// process.  Use Run to begin accepting connections from peers.
func newServer(listenAddrs []string, dataDir string, chainParams *params) (*server, error) {
	amgr, err := addrmgr.New(dataDir, cfg.lookup)
	if err != nil {
		return nil, err
	}

	s := server{
		chainParams:    chainParams,
		addrManager:    amgr,
		addrFetchQueue: connmgr.NewAddrFetchQueue(),
	}

	seedFallback, err := connmgr.NewSeedFallback(&connmgr.SeedFallbackConfig{
		Seeds:          cfg.SeedNodes,
		Store:          amgr,
		Queue:          s.addrFetchQueue,
		FallbackWindow: time.Duration(cfg.SeedFallbackWindow) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	s.seedFallback = seedFallback

	var listeners []net.Listener
	if !cfg.DisableListen {
		listeners, err = initListeners(listenAddrs)
		if err != nil {
			return nil, err
		}
	}

	// Only setup a function to return new addresses to connect to when not
	// running in connect-only mode.
	var newAddressFunc func() (net.Addr, error)
	if len(cfg.ConnectPeers) == 0 {
		newAddressFunc = func() (net.Addr, error) {
			for tries := 0; tries < 100; tries++ {
				ka := s.addrManager.GetAddress()
				if ka == nil {
					break
				}

				// Skip recently attempted addresses until enough other
				// candidates have been tried.
				if tries < 30 {
					lastAttempt := ka.LastAttempt()
					if !lastAttempt.IsZero() &&
						time.Since(lastAttempt) < 10*time.Minute {
						continue
					}
				}

				netAddr := ka.NetAddress()
				s.markAttempt(netAddr.Key())
				return addrStringToNetAddr(netAddr.Key(), cfg.lookup)
			}

			return nil, errors.New("no valid connect address")
		}
	}

	// Create a connection manager.
	targetOutbound := defaultTargetOutbound
	if cfg.MaxPeers < targetOutbound {
		targetOutbound = cfg.MaxPeers
	}
	cmgr, err := connmgr.New(&connmgr.Config{
		Listeners:       listeners,
		OnAccept:        s.inboundPeerConnected,
		RetryDuration:   connectionRetryInterval,
		TargetOutbound:  uint32(targetOutbound),
		Dial:            cfg.dial,
		Timeout:         cfg.DialTimeout,
		OnConnection:    s.outboundPeerConnected,
		OnFailure:       s.outboundPeerFailed,
		OnDisconnection: s.outboundPeerDisconnected,
		GetNewAddress:   newAddressFunc,
	})
	if err != nil {
		return nil, err
	}
	s.connManager = cmgr

	return &s, nil
}
