// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "github.com/davidgumberg/bitcoin/wire"

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.CurrencyNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// DNSSeeds defines a list of DNS seeds for the network that are used as
	// one method to discover peers.
	DNSSeeds []string
}

// mainNetParams contains parameters specific to the main network.
var mainNetParams = params{
	Name:        "mainnet",
	Net:         wire.MainNet,
	DefaultPort: "8333",
	DNSSeeds: []string{
		"seed.bitcoin.sipa.be",
		"dnsseed.bluematt.me",
		"dnsseed.bitcoin.dashjr.org",
		"seed.bitcoinstats.com",
		"seed.btc.petertodd.org",
	},
}

// testNetParams contains parameters specific to the test network.
var testNetParams = params{
	Name:        "testnet",
	Net:         wire.TestNet,
	DefaultPort: "18333",
	DNSSeeds: []string{
		"testnet-seed.bitcoin.jonasschnelli.ch",
		"seed.tbtc.petertodd.org",
		"testnet-seed.bluematt.me",
	},
}

// simNetParams contains parameters specific to the simulation test network.
// It has no DNS seeds since it is not routable and is only intended for
// private use within a testing environment.
var simNetParams = params{
	Name:        "simnet",
	Net:         wire.SimNet,
	DefaultPort: "18555",
	DNSSeeds:    nil,
}
