// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/davidgumberg/bitcoin/wire"
)

// Put some IP in here for convenience. Points to google.
var someIP = "173.194.115.66"

func lookupFunc(host string) ([]net.IP, error) {
	return nil, errors.New("not implemented")
}

// newAddrManagerForTest returns a new in-memory address manager for use in
// the tests.
func newAddrManagerForTest(t *testing.T) *AddrManager {
	t.Helper()

	amgr, err := New("", lookupFunc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return amgr
}

// addAddressByIP is a convenience function that adds an address to the
// address manager given a valid string representation of an ip address and
// a port.
func (a *AddrManager) addAddressByIP(addr string, port uint16) {
	ip := net.ParseIP(addr)
	na := NewNetAddressIPPort(ip, port, wire.SFNodeNetwork)
	a.AddAddress(na, na)
}

// TestStartStop tests the behavior of the address manager when it is started
// and stopped, including that the known addresses are persisted across
// restarts.
func TestStartStop(t *testing.T) {
	dir := t.TempDir()

	// Ensure the database does not exist before starting the address
	// manager.
	dbPath := filepath.Join(dir, peersDBFilename)
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatalf("peers database exists though it should not: %s", dbPath)
	}

	amgr, err := New(dir, lookupFunc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	amgr.Start()

	// Add single network address to the address manager.
	amgr.addAddressByIP(someIP, 8333)

	// Stop the address manager to force the known addresses to be flushed
	// to the database.
	if err := amgr.Stop(); err != nil {
		t.Fatalf("address manager failed to stop: %v", err)
	}

	// Verify that the database has been written to.
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("peers database does not exist: %s", dbPath)
	}

	// Start a new address manager, which initializes it from the database.
	amgr, err = New(dir, lookupFunc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	amgr.Start()

	knownAddress := amgr.GetAddress()
	if knownAddress == nil {
		t.Fatal("address manager should contain known address")
	}

	// Verify that the known address matches what was added to the address
	// manager previously.
	wantNetAddrKey := net.JoinHostPort(someIP, "8333")
	gotNetAddrKey := knownAddress.NetAddress().Key()
	if gotNetAddrKey != wantNetAddrKey {
		t.Fatalf("address manager does not contain expected address - "+
			"got %v, want %v", gotNetAddrKey, wantNetAddrKey)
	}

	if err := amgr.Stop(); err != nil {
		t.Fatalf("address manager failed to stop: %v", err)
	}
}

// TestAddAddressUpdate ensures adding addresses tracks the number of unique
// addresses, ignores duplicates, and updates the last seen timestamp of
// existing ones.
func TestAddAddressUpdate(t *testing.T) {
	amgr := newAddrManagerForTest(t)
	if ka := amgr.GetAddress(); ka != nil {
		t.Fatal("address manager should contain no addresses")
	}

	// Add a new address to the address manager and ensure it is returned.
	amgr.addAddressByIP(someIP, 8333)
	ka := amgr.GetAddress()
	if ka == nil {
		t.Fatal("address manager should contain known address")
	}
	if got := amgr.NumAddresses(); got != 1 {
		t.Fatalf("unexpected number of addresses - got %d, want 1", got)
	}

	// Adding the same address again must not create a duplicate entry.
	amgr.addAddressByIP(someIP, 8333)
	if got := amgr.NumAddresses(); got != 1 {
		t.Fatalf("unexpected number of addresses - got %d, want 1", got)
	}

	// Adding the same address with a newer timestamp must update the
	// last seen time of the existing entry.
	existingTime := ka.NetAddress().Timestamp
	newTime := existingTime.Add(time.Hour)
	ip := net.ParseIP(someIP)
	na := NewNetAddressTimestamp(newTime, ip, 8333, wire.SFNodeNetwork)
	amgr.AddAddress(na, na)
	if got := amgr.NumAddresses(); got != 1 {
		t.Fatalf("unexpected number of addresses - got %d, want 1", got)
	}
	gotTime := amgr.GetAddress().NetAddress().Timestamp
	if !gotTime.After(existingTime) {
		t.Fatalf("timestamp was not updated - got %v, want after %v",
			gotTime, existingTime)
	}
}

// TestAddNonRoutable ensures addresses that are not routable over the public
// internet are not added to the address manager.
func TestAddNonRoutable(t *testing.T) {
	tests := []string{
		"127.0.0.1",
		"10.0.0.5",
		"172.16.1.1",
		"192.168.1.1",
		"::1",
		"0.0.0.0",
		"fe80::1",
		"fc00::5",
	}

	amgr := newAddrManagerForTest(t)
	for _, addr := range tests {
		amgr.addAddressByIP(addr, 8333)
	}
	if !amgr.IsEmpty() {
		t.Fatalf("address manager contains %d non-routable addresses",
			amgr.NumAddresses())
	}
}

// TestAttempt ensures that marking an address as attempted updates the last
// attempt time and that attempting an unknown address returns the expected
// error.
func TestAttempt(t *testing.T) {
	amgr := newAddrManagerForTest(t)

	// Add a new address and get it.
	amgr.addAddressByIP(someIP, 8333)
	ka := amgr.GetAddress()

	if !ka.LastAttempt().IsZero() {
		t.Fatal("address should not have been attempted yet")
	}

	na := ka.NetAddress()
	if err := amgr.Attempt(na); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if ka.LastAttempt().IsZero() {
		t.Fatal("address was not attempted")
	}

	// Attempting an address the manager does not know about must error.
	unknown := NewNetAddressIPPort(net.ParseIP("1.2.3.4"), 8333,
		wire.SFNodeNetwork)
	err := amgr.Attempt(unknown)
	if !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("unexpected error - got %v, want %v", err,
			ErrAddressNotFound)
	}
}

// TestConnected ensures that marking an address as connected updates its
// last seen timestamp when enough time has passed.
func TestConnected(t *testing.T) {
	amgr := newAddrManagerForTest(t)

	// Add a new address and get it.
	amgr.addAddressByIP(someIP, 8333)
	ka := amgr.GetAddress()
	na := ka.NetAddress()

	// Mark the address as connected with a timestamp an hour in the past
	// so the refresh threshold triggers.
	na.Timestamp = time.Now().Add(-time.Hour)
	if err := amgr.Connected(na); err != nil {
		t.Fatalf("Connected: %v", err)
	}
	if !ka.NetAddress().Timestamp.After(na.Timestamp) {
		t.Fatal("address timestamp was not updated")
	}

	// Marking an unknown address as connected must error.
	unknown := NewNetAddressIPPort(net.ParseIP("1.2.3.4"), 8333,
		wire.SFNodeNetwork)
	err := amgr.Connected(unknown)
	if !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("unexpected error - got %v, want %v", err,
			ErrAddressNotFound)
	}
}

// TestGood ensures that marking an address as good resets its attempts and
// records the success time.
func TestGood(t *testing.T) {
	amgr := newAddrManagerForTest(t)

	amgr.addAddressByIP(someIP, 8333)
	ka := amgr.GetAddress()
	na := ka.NetAddress()

	if err := amgr.Attempt(na); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if err := amgr.Good(na); err != nil {
		t.Fatalf("Good: %v", err)
	}
	if ka.LastSuccess().IsZero() {
		t.Fatal("address success was not recorded")
	}
	ka.mtx.Lock()
	attempts := ka.attempts
	tried := ka.tried
	ka.mtx.Unlock()
	if attempts != 0 {
		t.Fatalf("unexpected attempts - got %d, want 0", attempts)
	}
	if !tried {
		t.Fatal("address was not marked as tried")
	}

	// Marking an unknown address as good must error.
	unknown := NewNetAddressIPPort(net.ParseIP("1.2.3.4"), 8333,
		wire.SFNodeNetwork)
	err := amgr.Good(unknown)
	if !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("unexpected error - got %v, want %v", err,
			ErrAddressNotFound)
	}
}

// TestNeedMoreAddresses ensures the need for more addresses is reported
// correctly based on the number of known addresses.
func TestNeedMoreAddresses(t *testing.T) {
	amgr := newAddrManagerForTest(t)
	if !amgr.NeedMoreAddresses() {
		t.Fatal("empty address manager should need more addresses")
	}

	addrs := make([]*NetAddress, needAddressThreshold)
	for i := 0; i < needAddressThreshold; i++ {
		s := fmt.Sprintf("%d.%d.173.147", i/128+60, i%128+60)
		addrs[i] = NewNetAddressIPPort(net.ParseIP(s), 8333,
			wire.SFNodeNetwork)
	}
	srcAddr := NewNetAddressIPPort(net.ParseIP("173.144.173.111"), 8333,
		wire.SFNodeNetwork)
	amgr.AddAddresses(addrs, srcAddr)

	if got := amgr.NumAddresses(); got != needAddressThreshold {
		t.Fatalf("unexpected number of addresses - got %d, want %d", got,
			needAddressThreshold)
	}
	if amgr.NeedMoreAddresses() {
		t.Fatal("address manager should not need more addresses")
	}
}

// TestGetAddress ensures that address selection only returns viable
// addresses.
func TestGetAddress(t *testing.T) {
	amgr := newAddrManagerForTest(t)

	// Get an address from an empty set (should error).
	if rv := amgr.GetAddress(); rv != nil {
		t.Fatalf("address manager should be empty - got %v", rv)
	}

	// Add a new address and get it.
	amgr.addAddressByIP(someIP, 8333)
	ka := amgr.GetAddress()
	if ka == nil {
		t.Fatal("did not get an address where there is one in the pool")
	}
	if gotKey := ka.NetAddress().Key(); gotKey != someIP+":8333" {
		t.Fatalf("unexpected address - got %v, want %v", gotKey,
			someIP+":8333")
	}
}

// TestSelectAddressKeys ensures the batch address selection returns unique
// keys and honors the requested count.
func TestSelectAddressKeys(t *testing.T) {
	amgr := newAddrManagerForTest(t)

	if keys := amgr.SelectAddressKeys(8); len(keys) != 0 {
		t.Fatalf("empty address manager returned %d keys", len(keys))
	}

	const numAddrs = 20
	for i := 0; i < numAddrs; i++ {
		amgr.addAddressByIP(fmt.Sprintf("60.70.80.%d", i+1), 8333)
	}

	// Requesting fewer keys than available must return exactly that many
	// unique keys.
	keys := amgr.SelectAddressKeys(8)
	if len(keys) != 8 {
		t.Fatalf("unexpected number of keys - got %d, want 8", len(keys))
	}
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			t.Fatalf("duplicate key returned: %s", key)
		}
		seen[key] = struct{}{}
	}

	// Requesting more keys than available must return all of them.
	keys = amgr.SelectAddressKeys(numAddrs * 2)
	if len(keys) != numAddrs {
		t.Fatalf("unexpected number of keys - got %d, want %d", len(keys),
			numAddrs)
	}
}

// TestHostToNetAddress ensures that hosts are properly converted to network
// addresses.
func TestHostToNetAddress(t *testing.T) {
	// Define a hook for the lookup function used by the address manager
	// in order to resolve a hostname to a known IP.
	resolvedIP := net.ParseIP("127.0.0.1")
	testLookup := func(host string) ([]net.IP, error) {
		if host != "hostname.example.com" {
			return nil, errors.New("unknown host")
		}
		return []net.IP{resolvedIP}, nil
	}
	amgr, err := New("", testLookup)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A literal IP address must not require a lookup.
	na, err := amgr.HostToNetAddress("1.2.3.4", 8333, wire.SFNodeNetwork)
	if err != nil {
		t.Fatalf("HostToNetAddress: %v", err)
	}
	if got := na.Key(); got != "1.2.3.4:8333" {
		t.Fatalf("unexpected address - got %v, want 1.2.3.4:8333", got)
	}

	// A resolvable hostname must use the lookup result.
	na, err = amgr.HostToNetAddress("hostname.example.com", 8333,
		wire.SFNodeNetwork)
	if err != nil {
		t.Fatalf("HostToNetAddress: %v", err)
	}
	if !na.IP.Equal(resolvedIP) {
		t.Fatalf("unexpected resolved ip - got %v, want %v", na.IP,
			resolvedIP)
	}

	// An unresolvable hostname must error.
	if _, err := amgr.HostToNetAddress("nonexistent.example.com", 8333,
		wire.SFNodeNetwork); err == nil {
		t.Fatal("expected error for unresolvable host")
	}
}

// TestParseNetAddress ensures parsing of host:port strings into network
// addresses works for valid inputs and rejects malformed ones.
func TestParseNetAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantKey string
		wantErr bool
	}{{
		name:    "ipv4 with port",
		in:      "1.2.3.4:8333",
		wantKey: "1.2.3.4:8333",
	}, {
		name:    "ipv6 with port",
		in:      "[2001:db8::1]:8333",
		wantKey: "[2001:db8::1]:8333",
	}, {
		name:    "missing port",
		in:      "1.2.3.4",
		wantErr: true,
	}, {
		name:    "invalid port",
		in:      "1.2.3.4:notaport",
		wantErr: true,
	}, {
		name:    "empty string",
		in:      "",
		wantErr: true,
	}}

	for _, test := range tests {
		na, err := ParseNetAddress(test.in, lookupFunc, wire.SFNodeNetwork)
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if got := na.Key(); got != test.wantKey {
			t.Errorf("%s: unexpected key - got %v, want %v", test.name,
				got, test.wantKey)
		}
	}
}

// TestCorruptDatabaseEntries ensures that corrupt database entries are
// skipped when loading the known addresses rather than preventing startup.
func TestCorruptDatabaseEntries(t *testing.T) {
	dir := t.TempDir()

	amgr, err := New(dir, lookupFunc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	amgr.Start()
	amgr.addAddressByIP(someIP, 8333)
	if err := amgr.Stop(); err != nil {
		t.Fatalf("address manager failed to stop: %v", err)
	}

	// Inject a corrupt entry directly into the database.
	db, err := openPeersDB(dir)
	if err != nil {
		t.Fatalf("openPeersDB: %v", err)
	}
	err = db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(peersBucket).Put([]byte("bogus"),
			[]byte("{not json"))
	})
	if err != nil {
		t.Fatalf("failed to inject corrupt entry: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	// Restarting must skip the corrupt entry and keep the valid one.
	amgr, err = New(dir, lookupFunc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	amgr.Start()
	if got := amgr.NumAddresses(); got != 1 {
		t.Fatalf("unexpected number of addresses - got %d, want 1", got)
	}
	if err := amgr.Stop(); err != nil {
		t.Fatalf("address manager failed to stop: %v", err)
	}
}
