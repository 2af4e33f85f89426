// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2019-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/davidgumberg/bitcoin/addrmgr"
)

// TestSeedFromDNS ensures DNS seeding resolves the provided seeds and
// delivers the discovered addresses via the callback with the default port
// and a randomized last seen time in the expected range.
func TestSeedFromDNS(t *testing.T) {
	seedIPs := []net.IP{
		net.ParseIP("1.2.3.4"),
		net.ParseIP("5.6.7.8"),
	}
	lookup := func(host string) ([]net.IP, error) {
		if host != "seed.example.com" {
			return nil, errors.New("unknown host")
		}
		return seedIPs, nil
	}

	results := make(chan []*addrmgr.NetAddress)
	SeedFromDNS([]string{"seed.example.com"}, 8333, lookup,
		func(addrs []*addrmgr.NetAddress) {
			results <- addrs
		})

	var addrs []*addrmgr.NetAddress
	select {
	case addrs = <-results:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for seed results")
	}

	if len(addrs) != len(seedIPs) {
		t.Fatalf("unexpected number of addresses - got %d, want %d",
			len(addrs), len(seedIPs))
	}
	for i, na := range addrs {
		if !na.IP.Equal(seedIPs[i]) {
			t.Errorf("unexpected ip %d - got %v, want %v", i, na.IP,
				seedIPs[i])
		}
		if na.Port != 8333 {
			t.Errorf("unexpected port %d - got %d, want 8333", i, na.Port)
		}

		// The last seen time is randomized between 3 and 7 days ago.
		age := time.Since(na.Timestamp)
		if age < 3*24*time.Hour || age > 7*24*time.Hour+time.Minute {
			t.Errorf("unexpected last seen age %v for address %d", age, i)
		}
	}
}

// TestSeedFromDNSFailure ensures a failed DNS lookup never invokes the
// callback.
func TestSeedFromDNSFailure(t *testing.T) {
	lookup := func(host string) ([]net.IP, error) {
		return nil, errors.New("lookup failed")
	}

	results := make(chan []*addrmgr.NetAddress, 1)
	SeedFromDNS([]string{"seed.example.com"}, 8333, lookup,
		func(addrs []*addrmgr.NetAddress) {
			results <- addrs
		})

	select {
	case <-results:
		t.Fatal("callback invoked for a failed lookup")
	case <-time.After(50 * time.Millisecond):
	}
}
