// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/davidgumberg/bitcoin/wire"
)

const (
	// peersDBFilename is the default filename of the database the
	// address manager's serialized state is stored in.
	peersDBFilename = "peers.db"

	// peersDBOpenTimeout is the maximum amount of time to wait on the
	// database file lock before giving up.
	peersDBOpenTimeout = 2 * time.Second

	// serializationVersion is the current version of the on-disk
	// format.
	serializationVersion = 1
)

var (
	// peersBucket stores one serialized known address per unique
	// address key.
	peersBucket = []byte("peers")

	// metaBucket stores database-wide metadata such as the
	// serialization version.
	metaBucket = []byte("meta")

	// versionKey is the meta bucket key the serialization version is
	// stored under.
	versionKey = []byte("version")
)

// serializedKnownAddress is used to represent the serializable state
// of a known address.  It excludes convenience fields that can be
// derived from the address manager's state.
type serializedKnownAddress struct {
	Addr        string
	Src         string
	Services    uint64
	Attempts    int
	TimeStamp   int64
	LastAttempt int64
	LastSuccess int64
	Tried       bool
}

// peersDB provides persistence for the address manager state backed by
// a bolt database.
type peersDB struct {
	db *bolt.DB
}

// openPeersDB opens (or creates) the address database in the provided
// data directory.
func openPeersDB(dataDir string) (*peersDB, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, peersDBFilename)
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: peersDBOpenTimeout,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(peersBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if meta.Get(versionKey) == nil {
			ver, err := json.Marshal(serializationVersion)
			if err != nil {
				return err
			}
			return meta.Put(versionKey, ver)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &peersDB{db: db}, nil
}

// Close releases the underlying database resources.
func (p *peersDB) Close() error {
	return p.db.Close()
}

// savePeers saves all known addresses to the database so they can be
// restored on next start.
//
// This function is safe for concurrent access.
func (a *AddrManager) savePeers() {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.db == nil || !a.addrChanged {
		return
	}

	entries := make([]*serializedKnownAddress, 0, len(a.addrIndex))
	for key, ka := range a.addrIndex {
		ka.mtx.Lock()
		ska := &serializedKnownAddress{
			Addr:        key,
			Services:    uint64(ka.na.Services),
			Attempts:    ka.attempts,
			TimeStamp:   ka.na.Timestamp.Unix(),
			LastAttempt: ka.lastattempt.Unix(),
			LastSuccess: ka.lastsuccess.Unix(),
			Tried:       ka.tried,
		}
		if ka.srcAddr != nil {
			ska.Src = ka.srcAddr.Key()
		}
		ka.mtx.Unlock()
		entries = append(entries, ska)
	}

	err := a.db.db.Update(func(tx *bolt.Tx) error {
		// Rewrite the full bucket so addresses removed from the index
		// do not linger on disk.
		if err := tx.DeleteBucket(peersBucket); err != nil {
			return err
		}
		bucket, err := tx.CreateBucket(peersBucket)
		if err != nil {
			return err
		}
		for _, ska := range entries {
			val, err := json.Marshal(ska)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(ska.Addr), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Errorf("Failed to save addresses to database: %v", err)
		return
	}
	a.addrChanged = false
}

// loadPeers loads the known addresses from the database.
//
// This function is safe for concurrent access.
func (a *AddrManager) loadPeers() {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.db == nil {
		return
	}

	var skipped int
	err := a.db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(peersBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var ska serializedKnownAddress
			if err := json.Unmarshal(v, &ska); err != nil {
				// Ignore individual corrupt entries rather than
				// refusing to start with the rest of the state.
				skipped++
				return nil
			}
			ka, err := deserializeKnownAddress(&ska)
			if err != nil {
				skipped++
				return nil
			}
			a.addrIndex[ka.na.Key()] = ka
			return nil
		})
	})
	if err != nil {
		log.Errorf("Failed to load addresses from database: %v", err)
		return
	}
	if skipped > 0 {
		log.Warnf("Skipped %d unparseable database entries", skipped)
	}

	log.Infof("Loaded %d addresses from database", len(a.addrIndex))
}

// deserializeKnownAddress converts the serialized form of a known
// address back into a usable instance.
func deserializeKnownAddress(ska *serializedKnownAddress) (*KnownAddress, error) {
	na, err := deserializeNetAddress(ska.Addr, ska.Services, ska.TimeStamp)
	if err != nil {
		return nil, err
	}
	ka := &KnownAddress{
		na:          na,
		attempts:    ska.Attempts,
		lastattempt: time.Unix(ska.LastAttempt, 0),
		lastsuccess: time.Unix(ska.LastSuccess, 0),
		tried:       ska.Tried,
	}
	if ska.Src != "" {
		srcAddr, err := deserializeNetAddress(ska.Src, 0, ska.TimeStamp)
		if err != nil {
			return nil, err
		}
		ka.srcAddr = srcAddr
	}
	return ka, nil
}

// deserializeNetAddress converts an address key from the database into
// a network address.
func deserializeNetAddress(key string, services uint64, timestamp int64) (*NetAddress, error) {
	host, portStr, err := net.SplitHostPort(key)
	if err != nil {
		return nil, makeError(ErrMalformedAddress, err.Error())
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, makeError(ErrMalformedAddress, err.Error())
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, makeError(ErrMalformedAddress, "invalid ip "+host)
	}
	return NewNetAddressTimestamp(time.Unix(timestamp, 0), ip,
		uint16(port), wire.ServiceFlag(services)), nil
}
