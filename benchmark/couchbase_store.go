package benchmark

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

const couchbaseReadyTimeout = 10 * time.Second

// CouchbaseStore implements Store on the default collection of a bucket
type CouchbaseStore struct {
	cluster    *gocb.Cluster
	bucketName string
	collection *gocb.Collection
}

// NewCouchbaseStore connects to the cluster at cfg.Address and waits for the
// bucket to become ready
func NewCouchbaseStore(cfg StoreConfig) (*CouchbaseStore, error) {
	if cfg.Address == "" || cfg.Bucket == "" {
		return nil, errors.New("couchbase store requires an address and a bucket")
	}

	cluster, err := gocb.Connect(couchbaseConnString(cfg.Address), gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to couchbase cluster")
	}

	bucket := cluster.Bucket(cfg.Bucket)
	if err := bucket.WaitUntilReady(couchbaseReadyTimeout, nil); err != nil {
		cluster.Close(nil)
		return nil, errors.Wrapf(err, "couchbase bucket %q not ready", cfg.Bucket)
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("Successfully connected to Couchbase bucket")

	return &CouchbaseStore{
		cluster:    cluster,
		bucketName: cfg.Bucket,
		collection: bucket.DefaultCollection(),
	}, nil
}

// Put upserts doc, which must hold a JSON document
func (c *CouchbaseStore) Put(ctx context.Context, id string, doc []byte) error {
	_, err := c.collection.Upsert(id, json.RawMessage(doc), &gocb.UpsertOptions{Context: ctx})
	return err
}

// Get implements Store.Get for Couchbase
func (c *CouchbaseStore) Get(ctx context.Context, id string) ([]byte, error) {
	res, err := c.collection.Get(id, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	var doc json.RawMessage
	if err := res.Content(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ClearAll flushes the bucket; flush must be enabled on it
func (c *CouchbaseStore) ClearAll(ctx context.Context) error {
	return c.cluster.Buckets().FlushBucket(c.bucketName, &gocb.FlushBucketOptions{Context: ctx})
}

// Close implements Store.Close for Couchbase
func (c *CouchbaseStore) Close() error {
	err := c.cluster.Close(nil)
	log.Info().Msg("Couchbase cluster connection closed")
	return err
}

func couchbaseConnString(address string) string {
	if hasScheme(address) {
		return address
	}
	return "couchbase://" + address
}
