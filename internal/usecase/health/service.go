// Package health probes the service's external dependencies.
package health

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// Status is the aggregate health verdict.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

// Pinger is a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report holds per-dependency availability and the aggregate status.
type Report struct {
	Status      Status
	Database    bool
	VectorStore bool
	Generative  bool
}

// Service checks the three external dependencies.
type Service struct {
	database    Pinger
	vectorStore Pinger
	generative  domain.HealthChecker
	logger      *zap.Logger
}

// New creates a health service.
func New(database, vectorStore Pinger, generative domain.HealthChecker, logger *zap.Logger) *Service {
	return &Service{
		database:    database,
		vectorStore: vectorStore,
		generative:  generative,
		logger:      logger,
	}
}

// Check probes every dependency. All up is healthy, all down is error,
// anything in between is degraded.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{
		Database:    s.probe(ctx, "database", s.database.Ping),
		VectorStore: s.probe(ctx, "vector_store", s.vectorStore.Ping),
		Generative:  s.probe(ctx, "generative", s.generative.HealthCheck),
	}

	switch {
	case r.Database && r.VectorStore && r.Generative:
		r.Status = StatusHealthy
	case !r.Database && !r.VectorStore && !r.Generative:
		r.Status = StatusError
	default:
		r.Status = StatusDegraded
	}
	return r
}

func (s *Service) probe(ctx context.Context, name string, fn func(context.Context) error) bool {
	if err := fn(ctx); err != nil {
		s.logger.Warn("Dependency check failed", zap.String("dependency", name), zap.Error(err))
		return false
	}
	return true
}
