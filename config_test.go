// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"reflect"
	"testing"
)

// TestNormalizeAddress ensures the default port is only appended to
// addresses that do not already specify one.
func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		port string
		want string
	}{
		{"1.2.3.4", "8333", "1.2.3.4:8333"},
		{"1.2.3.4:8333", "8333", "1.2.3.4:8333"},
		{"1.2.3.4:9999", "8333", "1.2.3.4:9999"},
		{"seed.example.com", "8333", "seed.example.com:8333"},
		{"seed.example.com:18333", "8333", "seed.example.com:18333"},
		{"[2001:db8::1]:8333", "8333", "[2001:db8::1]:8333"},
	}

	for _, test := range tests {
		got := normalizeAddress(test.in, test.port)
		if got != test.want {
			t.Errorf("normalizeAddress(%q, %q) = %q, want %q", test.in,
				test.port, got, test.want)
		}
	}
}

// TestNormalizeAddresses ensures the default port is applied and duplicate
// addresses are removed.
func TestNormalizeAddresses(t *testing.T) {
	tests := []struct {
		in   []string
		port string
		want []string
	}{{
		in:   []string{"1.2.3.4", "1.2.3.4:8333", "5.6.7.8"},
		port: "8333",
		want: []string{"1.2.3.4:8333", "5.6.7.8:8333"},
	}, {
		in:   []string{"1.2.3.4:9999", "1.2.3.4"},
		port: "8333",
		want: []string{"1.2.3.4:9999", "1.2.3.4:8333"},
	}, {
		in:   nil,
		port: "8333",
		want: []string{},
	}}

	for i, test := range tests {
		got := normalizeAddresses(test.in, test.port)
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("#%d: got %v, want %v", i, got, test.want)
		}
	}
}

// TestParseAndSetDebugLevels ensures debug level strings are validated as
// expected.
func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "single level", in: "debug"},
		{name: "single level trace", in: "trace"},
		{name: "subsystem pair", in: "CMGR=trace"},
		{name: "multiple pairs", in: "CMGR=trace,AMGR=debug"},
		{name: "invalid level", in: "bogus", wantErr: true},
		{name: "invalid subsystem", in: "BOGUS=debug", wantErr: true},
		{name: "invalid pair format", in: "CMGR:debug", wantErr: true},
		{name: "invalid pair level", in: "CMGR=bogus", wantErr: true},
	}

	for _, test := range tests {
		err := parseAndSetDebugLevels(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("%s: unexpected error status -- got %v", test.name,
				err)
		}
	}

	// Restore the default level for other tests.
	setLogLevels(defaultLogLevel)
}

// TestSupportedSubsystems ensures the supported subsystems list is sorted
// and contains the expected entries.
func TestSupportedSubsystems(t *testing.T) {
	subsystems := supportedSubsystems()
	want := []string{"AMGR", "CMGR", "MAIN", "SRVR"}
	if !reflect.DeepEqual(subsystems, want) {
		t.Fatalf("unexpected subsystems -- got %v, want %v", subsystems,
			want)
	}
}
