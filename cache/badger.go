// Package cache stores fetched attribute key lists on disk so that later
// runs can skip the statistics service.
package cache

import (
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
)

const keyPrefix = "combinations/"

// BadgerDB is a key list store backed by badger. Entries older than the
// configured TTL are reported as missing.
type BadgerDB struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or creates the store in dir. A ttl <= 0 keeps entries forever.
func Open(dir string, ttl time.Duration) (*BadgerDB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache %s", dir)
	}
	return &BadgerDB{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *BadgerDB) Close() error {
	return c.db.Close()
}

// Get returns the cached keys for layer. ok is false for missing or
// expired entries. Expired entries are removed.
func (c *BadgerDB) Get(layer string) (keys []string, ok bool, err error) {
	var data []byte
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + layer))
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", layer)
	}
	if data == nil {
		return nil, false, nil
	}

	fetched, keys, err := UnmarshalKeys(data)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decoding %s", layer)
	}
	if c.ttl > 0 && c.now().Sub(fetched) > c.ttl {
		return nil, false, c.Delete(layer)
	}
	return keys, true, nil
}

// Put stores keys for layer with the current time.
func (c *BadgerDB) Put(layer string, keys []string) error {
	data, err := MarshalKeys(c.now(), keys)
	if err != nil {
		return err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+layer), data)
	})
	return errors.Wrapf(err, "writing %s", layer)
}

// Delete removes the entry for layer.
func (c *BadgerDB) Delete(layer string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + layer))
	})
	return errors.Wrapf(err, "deleting %s", layer)
}
