package badger

import (
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection = errors.New("badger database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
)

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) get(key []byte) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, pkgerrors.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) set(key, val []byte) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

// page counts every key under prefix and returns the values of the keys in
// [offset, offset+limit), in key order, from a single read transaction.
func (d *Database) page(prefix []byte, offset, limit uint64) ([][]byte, uint64, error) {
	var (
		items [][]byte
		total uint64
	)
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = max(int(limit), 1)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pos := total
			total++
			if pos < offset || pos >= offset+limit {
				continue
			}

			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, val)
		}

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return items, total, nil
}
