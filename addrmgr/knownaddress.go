// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"sync"
	"time"
)

// KnownAddress tracks information about a known network address that
// is used to determine how viable an address is.
type KnownAddress struct {
	// mtx is used to ensure safe concurrent access to methods on a
	// known address instance.
	mtx sync.Mutex

	// na is the primary network address that the known address
	// represents.
	na *NetAddress

	// srcAddr is the network address of the peer that suggested the
	// primary network address.
	srcAddr *NetAddress

	// The following fields track the attempts made to connect to the
	// primary network address.  Initially connecting to a peer counts
	// as an attempt, and a successful connection resets the number of
	// attempts to zero.
	attempts    int
	lastattempt time.Time
	lastsuccess time.Time

	// tried indicates whether the address has ever been successfully
	// connected to.
	tried bool
}

// NetAddress returns the underlying network address associated with
// the known address.
func (ka *KnownAddress) NetAddress() *NetAddress {
	ka.mtx.Lock()
	defer ka.mtx.Unlock()
	return ka.na
}

// LastAttempt returns the last time the known address was attempted.
func (ka *KnownAddress) LastAttempt() time.Time {
	ka.mtx.Lock()
	defer ka.mtx.Unlock()
	return ka.lastattempt
}

// LastSuccess returns the last time an attempt to connect to the known
// address succeeded.
func (ka *KnownAddress) LastSuccess() time.Time {
	ka.mtx.Lock()
	defer ka.mtx.Unlock()
	return ka.lastsuccess
}

// isBad returns true if the address in question has not been tried in
// the last minute and meets one of the following criteria:
// 1) It claims to be from the future.
// 2) It hasn't been seen in over a month.
// 3) It has failed at least three times and never succeeded.
// 4) It has failed at least five times in the last week.
// All addresses that meet these criteria are assumed to be worthless
// and not worth keeping hold of.
//
// This function MUST be called with the known address lock held.
func (ka *KnownAddress) isBad() bool {
	// Has tried in the last minute.
	if ka.lastattempt.After(time.Now().Add(-1 * time.Minute)) {
		return false
	}

	// From the future?
	if ka.na.Timestamp.After(time.Now().Add(10 * time.Minute)) {
		return true
	}

	// Over a month old?
	if ka.na.Timestamp.Before(time.Now().Add(-1 * numMissingDays * time.Hour * 24)) {
		return true
	}

	// Never succeeded?
	if ka.lastsuccess.IsZero() && ka.attempts >= numRetries {
		return true
	}

	// Hasn't succeeded in too long?
	if !ka.lastsuccess.After(time.Now().Add(-1*minBadDays*time.Hour*24)) &&
		ka.attempts >= maxFailures {
		return true
	}

	return false
}
