// Copyright (c) 2020 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

type Err string

func (e Err) Error() string { return string(e) }

type Error struct {
	Description string
	Err         error
}

func (e Error) Error() string { return e.Description }
func (e Error) Unwrap() error { return e.Err }

var (
	// ErrDialNil is used to indicate that Dial cannot be nil in
	// the configuration.
	ErrDialNil = Err("ErrDialNil")

	// ErrQueueNil is used to indicate that the address fetch queue
	// cannot be nil in the seed fallback configuration.
	ErrQueueNil = Err("ErrQueueNil")

	// ErrStoreNil is used to indicate that the address store cannot be
	// nil in the seed fallback configuration.
	ErrStoreNil = Err("ErrStoreNil")
)
