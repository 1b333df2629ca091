package benchmark

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// BadgerStore implements Store on an embedded Badger instance
type BadgerStore struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewBadgerStore opens Badger at cfg.Path, or purely in memory when
// cfg.InMemory is set
func NewBadgerStore(cfg StoreConfig) (*BadgerStore, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badger store requires a path unless in_memory is set")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)
	if cfg.BlockCacheSize >= 0 {
		opts = opts.WithBlockCacheSize(cfg.BlockCacheSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}

	log.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Created Badger store")

	return &BadgerStore{db: db}, nil
}

// Put implements Store.Put for Badger
func (b *BadgerStore) Put(_ context.Context, id string, doc []byte) error {
	if b.closed.Load() {
		return ErrStoreClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey(id), doc)
	})
}

// Get implements Store.Get for Badger
func (b *BadgerStore) Get(_ context.Context, id string) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrStoreClosed
	}
	var doc []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(id))
		if err != nil {
			return err
		}
		doc, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrDocumentNotFound
	}
	return doc, err
}

// ClearAll implements Store.ClearAll for Badger
func (b *BadgerStore) ClearAll(_ context.Context) error {
	if b.closed.Load() {
		return ErrStoreClosed
	}
	return b.db.DropPrefix([]byte(documentKeyPrefix))
}

// Close implements Store.Close for Badger
func (b *BadgerStore) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}

// FetchSnapshot reports Badger LSM and value log sizes
func (b *BadgerStore) FetchSnapshot(_ context.Context) ExternalMetrics {
	metrics := ExternalMetrics{}
	if b.closed.Load() {
		return metrics
	}
	lsm, vlog := b.db.Size()
	metrics["Badger LSM Size (MB)"] = bytesToMB(float64(lsm))
	metrics["Badger Value Log Size (MB)"] = bytesToMB(float64(vlog))
	return metrics
}
