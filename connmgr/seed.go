// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2019-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"net"
	"time"

	"github.com/decred/dcrd/crypto/rand"

	"github.com/davidgumberg/bitcoin/addrmgr"
	"github.com/davidgumberg/bitcoin/wire"
)

const (
	// These constants are used by the DNS seed code to pick a random last
	// seen time.
	secondsIn3Days = 24 * 60 * 60 * 3
	secondsIn4Days = 24 * 60 * 60 * 4
)

// OnSeed is the signature of the callback function which is invoked when DNS
// seeding is successful.
type OnSeed func(addrs []*addrmgr.NetAddress)

// LookupFunc is the signature of the DNS lookup function.
type LookupFunc func(string) ([]net.IP, error)

// SeedFromDNS uses DNS seeding to populate the address manager with peers.
func SeedFromDNS(dnsSeeds []string, defaultPort uint16, lookupFn LookupFunc, seedFn OnSeed) {
	for _, seed := range dnsSeeds {
		go func(host string) {
			seedpeers, err := lookupFn(host)
			if err != nil {
				log.Infof("DNS discovery failed on seed %s: %v", host, err)
				return
			}
			numPeers := len(seedpeers)

			log.Infof("%d addresses found from DNS seed %s", numPeers, host)

			if numPeers == 0 {
				return
			}
			addresses := make([]*addrmgr.NetAddress, len(seedpeers))
			for i, peer := range seedpeers {
				// Seed with addresses from a time randomly selected
				// between 3 and 7 days ago.
				lastSeen := time.Now().Add(-1 * time.Second *
					time.Duration(secondsIn3Days+
						rand.IntN(secondsIn4Days)))
				addresses[i] = addrmgr.NewNetAddressTimestamp(lastSeen,
					peer, defaultPort, wire.SFNodeNetwork)
			}

			seedFn(addresses)
		}(seed)
	}
}
