package benchmark

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories open every backend that runs without external services
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"pebble": func() Store {
			s, err := NewPebbleStore(StoreConfig{Path: t.TempDir(), BlockCacheSize: 1 << 20})
			require.NoError(t, err)
			return s
		},
		"badger": func() Store {
			s, err := NewBadgerStore(StoreConfig{InMemory: true, BlockCacheSize: 1 << 20})
			require.NoError(t, err)
			return s
		},
		"redis": func() Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(context.Background(), StoreConfig{Address: mr.Addr()})
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			_, err := s.Get(ctx, "missing")
			assert.True(t, IsDocumentNotFound(err), "got %v", err)

			require.NoError(t, s.Put(ctx, "1", []byte(`{"v":1}`)))
			require.NoError(t, s.Put(ctx, "2", []byte(`{"v":2}`)))
			require.NoError(t, s.Put(ctx, "1", []byte(`{"v":3}`)))

			doc, err := s.Get(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, `{"v":3}`, string(doc))

			require.NoError(t, s.ClearAll(ctx))
			for _, id := range []string{"1", "2"} {
				_, err := s.Get(ctx, id)
				assert.True(t, IsDocumentNotFound(err), "id %s survived ClearAll: %v", id, err)
			}

			require.NoError(t, s.Put(ctx, "3", []byte(`{}`)))
			_, err = s.Get(ctx, "3")
			assert.NoError(t, err)
		})
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			doc := []byte(`{"v":1}`)
			require.NoError(t, s.Put(ctx, "1", doc))
			doc[2] = 'x'

			got, err := s.Get(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, `{"v":1}`, string(got))
		})
	}
}

func TestEmbeddedStoresAfterClose(t *testing.T) {
	ctx := context.Background()

	for name, open := range storeFactories(t) {
		if name == "redis" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			s := open()
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())

			err := s.Put(ctx, "1", []byte(`{}`))
			assert.True(t, errors.Is(err, ErrStoreClosed), "got %v", err)
		})
	}
}

func TestEngineMetrics(t *testing.T) {
	ctx := context.Background()

	pebbleStore, err := NewPebbleStore(StoreConfig{Path: t.TempDir(), BlockCacheSize: 1 << 20})
	require.NoError(t, err)
	defer pebbleStore.Close()
	require.NoError(t, pebbleStore.Put(ctx, "1", []byte(`{}`)))

	metrics := pebbleStore.FetchSnapshot(ctx)
	assert.Contains(t, metrics, "Pebble MemTable Size (MB)")
	assert.Contains(t, metrics, "Pebble Disk Usage (MB)")
	assert.Contains(t, metrics, "Pebble Block Cache Size (MB)")

	badgerStore, err := NewBadgerStore(StoreConfig{InMemory: true, BlockCacheSize: -1})
	require.NoError(t, err)
	defer badgerStore.Close()

	metrics = badgerStore.FetchSnapshot(ctx)
	assert.Contains(t, metrics, "Badger LSM Size (MB)")
	assert.Contains(t, metrics, "Badger Value Log Size (MB)")
}

func TestPebbleStoreWithoutBlockCache(t *testing.T) {
	s, err := NewPebbleStore(StoreConfig{Path: t.TempDir(), BlockCacheSize: -1})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "1", []byte(`{}`)))
	assert.NotContains(t, s.FetchSnapshot(context.Background()), "Pebble Block Cache Size (MB)")
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(ctx, StoreConfig{Type: StoreTypePebble, Path: t.TempDir(), BlockCacheSize: -1})
	require.NoError(t, err)
	assert.IsType(t, &PebbleStore{}, s)
	require.NoError(t, s.Close())

	_, err = NewStore(ctx, StoreConfig{Type: StoreTypePebble})
	assert.Error(t, err)

	_, err = NewStore(ctx, StoreConfig{Type: "cassandra"})
	assert.True(t, errors.Is(err, ErrUnknownStore))
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), StoreConfig{Address: addr})
	assert.Error(t, err)
}

func TestRedisStoreUsesDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), StoreConfig{Address: mr.Addr(), Database: 2})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "7", []byte(`{}`)))

	mr.Select(2)
	assert.True(t, mr.Exists(string(documentKey("7"))))
}

func TestParseRedisInfo(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.0\r\n\r\n# Stats\r\ninstantaneous_ops_per_sec:1500\r\n" +
		"# Memory\r\nused_memory:2097152\r\n# CPU\r\nused_cpu_sys:1.25\r\nused_cpu_user:3.5\r\n" +
		"# Clients\r\nconnected_clients:12\r\nbroken line\r\n"

	fields := parseRedisInfo(info)
	assert.Equal(t, "7.2.0", fields["redis_version"])
	assert.Equal(t, "1500", fields["instantaneous_ops_per_sec"])

	metrics := redisInfoMetrics(fields)
	assert.Equal(t, ExternalMetrics{
		"Redis Operations per Second": 1500,
		"Redis Memory Used (MB)":      2,
		"Redis CPU System (s)":        1.25,
		"Redis CPU User (s)":          3.5,
		"Redis Connected Clients":     12,
	}, metrics)

	metrics = redisInfoMetrics(map[string]string{"used_memory": "lots"})
	assert.Empty(t, metrics)
}

func TestDocumentKeyRange(t *testing.T) {
	upper := documentKeyUpperBound()
	for _, id := range []string{"0", "999999", "ffffffff"} {
		key := documentKey(id)
		assert.Less(t, string(key), string(upper))
		assert.GreaterOrEqual(t, string(key), documentKeyPrefix)
	}
	assert.Equal(t, documentKeyPrefix, "doc/")
}
