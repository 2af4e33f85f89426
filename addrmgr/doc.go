// Copyright (c) 2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package addrmgr implements concurrency safe network address management.

# Address Manager Overview

In order maintain the peer-to-peer network without relying on any fixed
set of peers, a node needs to remember the addresses it has previously
learned about so that it has candidates to connect to on a subsequent
startup.  The address manager stores those candidates, tracks attempt
and success bookkeeping for each one, ages out addresses that have
repeatedly failed, and hands out randomized selections for outbound
connection attempts.

The state is periodically persisted to a small database so a restarted
node starts from its previously known addresses rather than from
nothing.
*/
package addrmgr
