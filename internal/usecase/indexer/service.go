// Package indexer builds and maintains the chunk embeddings for blog posts.
package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/chunker"
	"github.com/kailas-cloud/blograg/internal/domain"
)

// DefaultRefreshLimit caps how many posts a full refresh re-reads.
const DefaultRefreshLimit = 1000

// DefaultSettleDelay gives the store a moment after a bulk delete before the
// rebuild starts writing.
const DefaultSettleDelay = 2 * time.Second

// Summary reports what one indexing run produced.
type Summary struct {
	PostsProcessed int
	ChunksCreated  int
}

// Service orchestrates fetch, chunk, embed and upsert.
type Service struct {
	posts        PostReader
	vectors      VectorIndex
	embedder     domain.Embedder
	chunkOverlap int
	refreshLimit int
	settleDelay  time.Duration
	sleep        func(time.Duration)
	logger       *zap.Logger
}

// New creates an indexing service with default overlap and refresh settings.
func New(posts PostReader, vectors VectorIndex, embedder domain.Embedder, logger *zap.Logger) *Service {
	return &Service{
		posts:        posts,
		vectors:      vectors,
		embedder:     embedder,
		chunkOverlap: chunker.DefaultOverlap,
		refreshLimit: DefaultRefreshLimit,
		settleDelay:  DefaultSettleDelay,
		sleep:        time.Sleep,
		logger:       logger,
	}
}

// WithChunkOverlap overrides the chunk overlap.
func (s *Service) WithChunkOverlap(n int) *Service {
	if n >= 0 {
		s.chunkOverlap = n
	}
	return s
}

// WithRefresh overrides the refresh limit and post-delete settle delay.
func (s *Service) WithRefresh(limit int, settle time.Duration) *Service {
	if limit > 0 {
		s.refreshLimit = limit
	}
	if settle >= 0 {
		s.settleDelay = settle
	}
	return s
}

// ReindexAll fetches up to limit posts, chunks and embeds them, and upserts
// the resulting records. A chunk whose embedding fails is logged and skipped;
// the run keeps going.
func (s *Service) ReindexAll(ctx context.Context, limit, chunkSize int) (Summary, error) {
	posts, err := s.posts.ListIndexable(ctx, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list indexable posts: %w", err)
	}

	records := make([]domain.VectorRecord, 0, len(posts)*2)
	for _, p := range posts {
		records = append(records, s.stagePost(ctx, p, chunkSize)...)
	}

	written := s.vectors.Upsert(ctx, records)
	s.logger.Info("Reindexed posts",
		zap.Int("posts", len(posts)),
		zap.Int("chunks", len(records)),
		zap.Int("written", written),
	)

	return Summary{PostsProcessed: len(posts), ChunksCreated: len(records)}, nil
}

// UpdatePost rebuilds the records for one post. Existing records are removed
// first so a shorter rewrite leaves no stale tail chunks behind. A post whose
// content no longer passes the length filter ends up with zero records.
func (s *Service) UpdatePost(ctx context.Context, id int64, chunkSize int) (Summary, error) {
	p, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return Summary{}, err
	}

	removed, err := s.vectors.DeleteByPost(ctx, id)
	if err != nil {
		return Summary{}, fmt.Errorf("clear post %d: %w", id, err)
	}

	if !s.posts.Eligible(p) {
		s.logger.Info("Post no longer indexable, records cleared",
			zap.Int64("post_id", id),
			zap.Int("removed", removed),
		)
		return Summary{PostsProcessed: 1}, nil
	}

	records := s.stagePost(ctx, p, chunkSize)
	s.vectors.Upsert(ctx, records)

	return Summary{PostsProcessed: 1, ChunksCreated: len(records)}, nil
}

// DeletePost removes every record belonging to a post and returns the count.
func (s *Service) DeletePost(ctx context.Context, id int64) (int, error) {
	removed, err := s.vectors.DeleteByPost(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete post %d records: %w", id, err)
	}
	return removed, nil
}

// RefreshAll wipes the index contents and rebuilds from scratch, up to the
// refresh limit.
func (s *Service) RefreshAll(ctx context.Context, chunkSize int) (Summary, error) {
	removed, err := s.vectors.DeleteAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("clear index: %w", err)
	}
	s.logger.Info("Cleared vector index for refresh", zap.Int("removed", removed))

	if s.settleDelay > 0 {
		s.sleep(s.settleDelay)
	}

	return s.ReindexAll(ctx, s.refreshLimit, chunkSize)
}

// stagePost chunks and embeds one post. Chunk ids derive from the post id and
// chunk ordinal, so re-running the same content overwrites in place.
func (s *Service) stagePost(ctx context.Context, p domain.Post, chunkSize int) []domain.VectorRecord {
	chunks := chunker.Split(p.IndexableText(), chunkSize, s.chunkOverlap)

	records := make([]domain.VectorRecord, 0, len(chunks))
	for i, text := range chunks {
		ch := domain.Chunk{PostID: p.ID, Ordinal: i, Text: text}

		res, err := s.embedder.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("Failed to embed chunk, skipping",
				zap.Int64("post_id", p.ID),
				zap.Int("ordinal", i),
				zap.Error(err),
			)
			continue
		}

		records = append(records, domain.VectorRecord{
			ID:      ch.RecordID(),
			Vector:  res.Embedding,
			Text:    text,
			PostID:  p.ID,
			Title:   p.Title,
			Ordinal: i,
		})
	}
	return records
}
