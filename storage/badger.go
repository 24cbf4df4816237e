package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
)

const badgerBlockPrefix = "blk/"

// BadgerDevice stores each block as a value in a badger database keyed by
// block id. Unwritten blocks have no key and read as zeros.
type BadgerDevice struct {
	geometry
	db *badgerdb.DB
}

// OpenBadgerDevice opens the database in dir. An empty dir opens an in-memory
// database.
func OpenBadgerDevice(dir string, blockSize int, blockCount uint64) (*BadgerDevice, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	return &BadgerDevice{
		geometry: geometry{blockSize: blockSize, blockCount: blockCount},
		db:       db,
	}, nil
}

func keyBlock(id uint64) []byte {
	key := make([]byte, len(badgerBlockPrefix)+8)
	copy(key, badgerBlockPrefix)
	binary.BigEndian.PutUint64(key[len(badgerBlockPrefix):], id)
	return key
}

func (d *BadgerDevice) ReadBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	return d.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyBlock(id))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			clear(buf)
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n := copy(buf, val)
			clear(buf[n:])
			return nil
		})
	})
}

func (d *BadgerDevice) WriteBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	val := make([]byte, len(buf))
	copy(val, buf)
	return d.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(keyBlock(id), val); err != nil {
			return fmt.Errorf("failed to store block %d: %w", id, err)
		}
		return nil
	})
}

func (d *BadgerDevice) Close() error {
	return d.db.Close()
}
