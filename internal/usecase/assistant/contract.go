package assistant

import (
	"context"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// VectorSearcher is the read side of the vector store used when answering.
type VectorSearcher interface {
	Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error)
	Stats(ctx context.Context) (int, error)
}
