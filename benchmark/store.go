package benchmark

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Store is the document store under test. Implementations must be safe for
// concurrent use; workers share a single Store per benchmark.
type Store interface {
	// Put writes doc under id, replacing any previous document
	Put(ctx context.Context, id string, doc []byte) error

	// Get returns the document stored under id.
	// Returns ErrDocumentNotFound if id doesn't exist
	Get(ctx context.Context, id string) ([]byte, error)

	// ClearAll removes every document written by the benchmark
	ClearAll(ctx context.Context) error

	// Close releases the store's connections and files
	Close() error
}

// StoreType names a Store backend
type StoreType string

const (
	StoreTypeMemory    StoreType = "memory"
	StoreTypePebble    StoreType = "pebble"
	StoreTypeBadger    StoreType = "badger"
	StoreTypeRedis     StoreType = "redis"
	StoreTypeCouchbase StoreType = "couchbase"
)

// StoreConfig holds configuration for store creation. Fields that do not
// apply to the selected backend are ignored.
type StoreConfig struct {
	Type StoreType `mapstructure:"type" json:"type" yaml:"type"`

	// Embedded backends (pebble, badger)
	Path           string `mapstructure:"path" json:"path,omitempty" yaml:"path,omitempty"`
	InMemory       bool   `mapstructure:"in_memory" json:"in_memory" yaml:"in_memory"`
	BlockCacheSize int64  `mapstructure:"block_cache_size" json:"block_cache_size" yaml:"block_cache_size"` // bytes, negative means disabled

	// Remote backends (redis, couchbase)
	Address       string `mapstructure:"address" json:"address,omitempty" yaml:"address,omitempty"`
	Username      string `mapstructure:"username" json:"username,omitempty" yaml:"username,omitempty"`
	Password      string `mapstructure:"password" json:"-" yaml:"-"`
	Bucket        string `mapstructure:"bucket" json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Database      int    `mapstructure:"database" json:"database" yaml:"database"`
	ManagementURL string `mapstructure:"management_url" json:"management_url,omitempty" yaml:"management_url,omitempty"`
}

// Common store errors
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrStoreClosed      = errors.New("store is closed")
	ErrUnknownStore     = errors.New("unknown store backend")
)

// NewStore opens the backend selected by cfg.Type
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypePebble:
		return NewPebbleStore(cfg)
	case StoreTypeBadger:
		return NewBadgerStore(cfg)
	case StoreTypeRedis:
		return NewRedisStore(ctx, cfg)
	case StoreTypeCouchbase:
		return NewCouchbaseStore(cfg)
	default:
		return nil, errors.Wrapf(ErrUnknownStore, "%q", cfg.Type)
	}
}

// IsDocumentNotFound reports whether err means the id has no document
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// documentKey namespaces benchmark documents inside embedded key spaces so
// ClearAll can drop them with a single range deletion.
const documentKeyPrefix = "doc/"

func documentKey(id string) []byte {
	return append([]byte(documentKeyPrefix), id...)
}

// documentKeyUpperBound is the first key after every documentKey
func documentKeyUpperBound() []byte {
	end := []byte(documentKeyPrefix)
	end[len(end)-1]++
	return end
}
