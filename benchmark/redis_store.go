package benchmark

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// RedisStore implements Store on a Redis server, one string key per document
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to cfg.Address and verifies the connection
func NewRedisStore(ctx context.Context, cfg StoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis store requires an address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Address)
	}

	log.Info().
		Str("address", cfg.Address).
		Int("database", cfg.Database).
		Msg("Connected to Redis")

	return &RedisStore{client: client}, nil
}

// Put implements Store.Put for Redis
func (r *RedisStore) Put(ctx context.Context, id string, doc []byte) error {
	return r.client.Set(ctx, string(documentKey(id)), doc, 0).Err()
}

// Get implements Store.Get for Redis
func (r *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	doc, err := r.client.Get(ctx, string(documentKey(id))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDocumentNotFound
	}
	return doc, err
}

// ClearAll flushes the selected database
func (r *RedisStore) ClearAll(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

// Close implements Store.Close for Redis
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// FetchSnapshot reports server statistics from INFO
func (r *RedisStore) FetchSnapshot(ctx context.Context) ExternalMetrics {
	info, err := r.client.Info(ctx).Result()
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve Redis INFO")
		return ExternalMetrics{}
	}
	return redisInfoMetrics(parseRedisInfo(info))
}

// redisInfoFields maps INFO fields to report names and a scale factor
var redisInfoFields = []struct {
	field string
	name  string
	scale float64
}{
	{"instantaneous_ops_per_sec", "Redis Operations per Second", 1},
	{"used_memory", "Redis Memory Used (MB)", 1.0 / (1024 * 1024)},
	{"used_cpu_sys", "Redis CPU System (s)", 1},
	{"used_cpu_user", "Redis CPU User (s)", 1},
	{"connected_clients", "Redis Connected Clients", 1},
}

func redisInfoMetrics(fields map[string]string) ExternalMetrics {
	metrics := ExternalMetrics{}
	for _, f := range redisInfoFields {
		raw, ok := fields[f.field]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Warn().Str("field", f.field).Str("value", raw).Msg("Invalid Redis INFO value")
			continue
		}
		metrics[f.name] = v * f.scale
	}
	return metrics
}

// parseRedisInfo splits an INFO reply into field/value pairs, skipping
// section headers and blank lines
func parseRedisInfo(info string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[k] = v
	}
	return fields
}
