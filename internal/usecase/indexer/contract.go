package indexer

import (
	"context"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// PostReader supplies blog posts eligible for indexing.
type PostReader interface {
	ListIndexable(ctx context.Context, limit int) ([]domain.Post, error)
	GetByID(ctx context.Context, id int64) (domain.Post, error)
	Eligible(p domain.Post) bool
}

// VectorIndex is the write side of the vector store used by the indexer.
type VectorIndex interface {
	Upsert(ctx context.Context, records []domain.VectorRecord) int
	DeleteByPost(ctx context.Context, postID int64) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}
