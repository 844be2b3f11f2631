// Package vectorstore wraps the Redis FT vector index holding blog chunk
// embeddings.
package vectorstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/db"
	"github.com/kailas-cloud/blograg/internal/domain"
)

// DefaultUpsertBatchSize bounds the number of records per pipelined upsert.
const DefaultUpsertBatchSize = 50

// keyPrefix namespaces chunk hashes; record ids are appended directly.
var keyPrefix = domain.KeyPrefix + "chunk:"

// store is the consumer interface for vector index operations.
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	Ping(ctx context.Context) error
}

// HNSWConfig carries HNSW build parameters for index creation.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Client implements the vector store operations used by the pipelines.
type Client struct {
	store      store
	indexName  string
	dimensions int
	batchSize  int
	readyWait  time.Duration
	hnsw       HNSWConfig
	logger     *zap.Logger
}

// New creates a vector store client for a named, dimensioned index.
func New(s store, indexName string, dimensions int, logger *zap.Logger) *Client {
	return &Client{
		store:      s,
		indexName:  indexName,
		dimensions: dimensions,
		batchSize:  DefaultUpsertBatchSize,
		readyWait:  10 * time.Second,
		logger:     logger,
	}
}

// WithBatchSize overrides the upsert batch size.
func (c *Client) WithBatchSize(n int) *Client {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

// WithHNSW sets HNSW build parameters used at index creation.
func (c *Client) WithHNSW(cfg HNSWConfig) *Client {
	c.hnsw = cfg
	return c
}

// WithReadyWait overrides the post-create readiness timeout.
func (c *Client) WithReadyWait(d time.Duration) *Client {
	if d > 0 {
		c.readyWait = d
	}
	return c
}

// EnsureIndex creates the chunk index if absent and waits for it to become
// visible. Returns true when the index was created by this call.
func (c *Client) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := c.store.IndexExists(ctx, c.indexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", c.indexName, err)
	}
	if exists {
		return false, nil
	}

	def := &db.IndexDefinition{
		Name:     c.indexName,
		Prefixes: []string{keyPrefix},
		Fields: []db.IndexField{
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorDim:         c.dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           c.hnsw.M,
				VectorEFConstruct: c.hnsw.EFConstruct,
			},
			{Name: "post_id", Type: db.IndexFieldTag},
			{Name: "ordinal", Type: db.IndexFieldNumeric},
		},
	}

	if err := c.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			// Lost a create race; the index is there, which is all we need.
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", c.indexName, err)
	}

	if err := c.waitReady(ctx); err != nil {
		return true, err
	}

	c.logger.Info("Created vector index",
		zap.String("index", c.indexName),
		zap.Int("dimensions", c.dimensions),
	)
	return true, nil
}

// waitReady polls FT.INFO until the freshly created index is visible.
func (c *Client) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.readyWait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		exists, err := c.store.IndexExists(ctx, c.indexName)
		if err == nil && exists {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("index %s not ready: %w", c.indexName, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Upsert writes records in fixed-size batches. A failed batch is logged and
// skipped so the remaining batches still land; the returned count covers only
// the records actually written.
func (c *Client) Upsert(ctx context.Context, records []domain.VectorRecord) int {
	written := 0
	for start := 0; start < len(records); start += c.batchSize {
		end := min(start+c.batchSize, len(records))
		batch := records[start:end]

		items := make([]db.HashSetItem, len(batch))
		for i, rec := range batch {
			items[i] = db.HashSetItem{
				Key:    keyPrefix + rec.ID,
				Fields: recordFields(rec),
			}
		}

		if err := c.store.HSetMulti(ctx, items); err != nil {
			c.logger.Warn("Failed to upsert vector batch",
				zap.Int("batch_start", start),
				zap.Int("batch_len", len(batch)),
				zap.Error(err),
			)
			continue
		}
		written += len(batch)
	}
	return written
}

// Query runs a KNN search and returns matches in ranking order. Score
// filtering is left to the caller.
func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	q := &db.KNNQuery{
		IndexName:    c.indexName,
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"text", "post_id", "title", "ordinal", "__vector_score"},
	}

	sr, err := c.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knn search %s: %w", c.indexName, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	matches := make([]domain.Match, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		matches = append(matches, parseEntry(entry))
	}
	return matches, nil
}

// DeleteByPost removes every chunk record belonging to the given post.
func (c *Client) DeleteByPost(ctx context.Context, postID int64) (int, error) {
	pattern := fmt.Sprintf("%s%d_*", keyPrefix, postID)
	return c.deleteByPattern(ctx, pattern)
}

// DeleteAll removes every chunk record in the index. The index definition
// itself is kept.
func (c *Client) DeleteAll(ctx context.Context) (int, error) {
	return c.deleteByPattern(ctx, keyPrefix+"*")
}

func (c *Client) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Scan(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.DelMulti(ctx, keys); err != nil {
		return 0, fmt.Errorf("delete %d keys: %w", len(keys), err)
	}
	return len(keys), nil
}

// Stats returns the total vector count in the index.
func (c *Client) Stats(ctx context.Context) (int, error) {
	total, err := c.store.SearchCount(ctx, c.indexName, "*")
	if err != nil {
		return 0, fmt.Errorf("index stats %s: %w", c.indexName, err)
	}
	return total, nil
}

// Ping probes the backing store.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping vector store: %w", err)
	}
	return nil
}

func recordFields(rec domain.VectorRecord) map[string]string {
	return map[string]string{
		"vector":  vectorToBytes(rec.Vector),
		"text":    rec.Text,
		"post_id": strconv.FormatInt(rec.PostID, 10),
		"title":   rec.Title,
		"ordinal": strconv.Itoa(rec.Ordinal),
	}
}

func parseEntry(entry db.SearchEntry) domain.Match {
	m := domain.Match{
		ID:    strings.TrimPrefix(entry.Key, keyPrefix),
		Score: entry.Score,
		Text:  entry.Fields["text"],
		Title: entry.Fields["title"],
	}
	if id, err := strconv.ParseInt(entry.Fields["post_id"], 10, 64); err == nil {
		m.PostID = id
	}
	if ord, err := strconv.Atoi(entry.Fields["ordinal"]); err == nil {
		m.Ordinal = ord
	}
	return m
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
