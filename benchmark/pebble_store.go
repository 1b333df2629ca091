package benchmark

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"
)

// PebbleStore implements Store on an embedded Pebble instance
type PebbleStore struct {
	db     *pebble.DB
	cache  *pebble.Cache
	closed atomic.Bool
}

// NewPebbleStore opens (or creates) a Pebble database at cfg.Path
func NewPebbleStore(cfg StoreConfig) (*PebbleStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("pebble store requires a path")
	}

	opts := &pebble.Options{}

	var cache *pebble.Cache
	if cfg.BlockCacheSize >= 0 {
		cache = pebble.NewCache(cfg.BlockCacheSize)
		opts.Cache = cache

		log.Info().
			Int64("block_cache_size", cfg.BlockCacheSize).
			Msg("Created Pebble with block cache")
	} else {
		log.Info().Msg("Created Pebble with block cache disabled")
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		if cache != nil {
			cache.Unref()
		}
		return nil, errors.Wrapf(err, "open pebble at %s", cfg.Path)
	}

	return &PebbleStore{
		db:    db,
		cache: cache,
	}, nil
}

// Put implements Store.Put for Pebble
func (p *PebbleStore) Put(_ context.Context, id string, doc []byte) error {
	if p.closed.Load() {
		return ErrStoreClosed
	}
	return p.db.Set(documentKey(id), doc, pebble.NoSync)
}

// Get implements Store.Get for Pebble
func (p *PebbleStore) Get(_ context.Context, id string) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrStoreClosed
	}
	value, closer, err := p.db.Get(documentKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	// value is only valid until closer is closed
	doc := append([]byte(nil), value...)
	return doc, closer.Close()
}

// ClearAll drops every benchmark document and flushes the memtable so the
// next run starts from an on-disk state
func (p *PebbleStore) ClearAll(_ context.Context) error {
	if p.closed.Load() {
		return ErrStoreClosed
	}
	if err := p.db.DeleteRange([]byte(documentKeyPrefix), documentKeyUpperBound(), pebble.Sync); err != nil {
		return errors.Wrap(err, "pebble delete range")
	}
	return p.db.Flush()
}

// Close implements Store.Close for Pebble
func (p *PebbleStore) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.db.Close()
	if p.cache != nil {
		p.cache.Unref()
		p.cache = nil
	}
	return err
}

// FetchSnapshot reports Pebble engine metrics
func (p *PebbleStore) FetchSnapshot(_ context.Context) ExternalMetrics {
	metrics := ExternalMetrics{}
	if p.closed.Load() {
		return metrics
	}

	m := p.db.Metrics()
	metrics["Pebble MemTable Size (MB)"] = bytesToMB(float64(m.MemTable.Size))
	metrics["Pebble Disk Usage (MB)"] = bytesToMB(float64(m.DiskSpaceUsage()))
	metrics["Pebble Compactions"] = float64(m.Compact.Count)
	metrics["Pebble Flushes"] = float64(m.Flush.Count)

	if p.cache != nil {
		hits, misses := m.BlockCache.Hits, m.BlockCache.Misses
		metrics["Pebble Block Cache Size (MB)"] = bytesToMB(float64(m.BlockCache.Size))
		if total := hits + misses; total > 0 {
			metrics["Pebble Block Cache Hit Rate (%)"] = 100 * float64(hits) / float64(total)
		}
	}
	return metrics
}
