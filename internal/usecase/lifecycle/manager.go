// Package lifecycle initializes the service's dependencies in order and
// tracks readiness for the HTTP layer.
package lifecycle

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
	"github.com/kailas-cloud/blograg/internal/usecase/indexer"
)

// State is the coarse lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// DefaultWarmStartLimit caps how many posts the boot-time index fill reads.
const DefaultWarmStartLimit = 20

// DBPinger probes the relational store.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// VectorIndex is the slice of the vector store the manager needs at boot.
type VectorIndex interface {
	EnsureIndex(ctx context.Context) (bool, error)
	Stats(ctx context.Context) (int, error)
}

// Reindexer fills the index during warm start.
type Reindexer interface {
	ReindexAll(ctx context.Context, limit, chunkSize int) (indexer.Summary, error)
}

// Snapshot is an immutable readiness view handed to request handlers.
type Snapshot struct {
	State          State
	Ready          bool
	IndexPopulated bool
}

// Manager drives initialization and owns the readiness state.
type Manager struct {
	mu             sync.RWMutex
	state          State
	indexPopulated bool

	database      DBPinger
	vectors       VectorIndex
	generative    domain.HealthChecker
	indexer       Reindexer
	warmLimit     int
	warmChunkSize int
	closers       []func() error
	logger        *zap.Logger
}

// New creates a lifecycle manager in the uninitialized state.
func New(
	database DBPinger,
	vectors VectorIndex,
	generative domain.HealthChecker,
	idx Reindexer,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		state:      StateUninitialized,
		database:   database,
		vectors:    vectors,
		generative: generative,
		indexer:    idx,
		warmLimit:  DefaultWarmStartLimit,
		logger:     logger,
	}
}

// WithWarmStart overrides the warm start post limit and chunk size.
// chunkSize 0 means the chunker default.
func (m *Manager) WithWarmStart(limit, chunkSize int) *Manager {
	if limit >= 0 {
		m.warmLimit = limit
	}
	if chunkSize >= 0 {
		m.warmChunkSize = chunkSize
	}
	return m
}

// WithCloser registers a resource released by Cleanup, in registration order.
func (m *Manager) WithCloser(fn func() error) *Manager {
	m.closers = append(m.closers, fn)
	return m
}

// InitializeAll runs the boot sequence: database ping, index creation,
// generative provider probe. Any failure flips the state to failed. On
// success, an empty or freshly created index gets a best-effort warm fill.
func (m *Manager) InitializeAll(ctx context.Context) bool {
	m.setState(StateInitializing)

	if err := m.database.Ping(ctx); err != nil {
		return m.fail("database", err)
	}

	created, err := m.vectors.EnsureIndex(ctx)
	if err != nil {
		return m.fail("vector index", err)
	}

	if err := m.generative.HealthCheck(ctx); err != nil {
		return m.fail("generative provider", err)
	}

	m.setState(StateReady)
	m.logger.Info("All services initialized", zap.Bool("index_created", created))

	m.warmStart(ctx, created)
	return true
}

// warmStart fills an empty index at boot. Failures are logged, never fatal:
// a ready service with an empty index still answers with the canned
// not-indexed message.
func (m *Manager) warmStart(ctx context.Context, created bool) {
	populated := false
	if !created {
		total, err := m.vectors.Stats(ctx)
		if err != nil {
			m.logger.Warn("Failed to read index stats at boot", zap.Error(err))
		}
		populated = total > 0
	}

	if populated {
		m.setPopulated(true)
		return
	}
	if m.warmLimit == 0 {
		return
	}

	summary, err := m.indexer.ReindexAll(ctx, m.warmLimit, m.warmChunkSize)
	if err != nil {
		m.logger.Warn("Warm start indexing failed", zap.Error(err))
		return
	}

	m.logger.Info("Warm start indexing done",
		zap.Int("posts", summary.PostsProcessed),
		zap.Int("chunks", summary.ChunksCreated),
	)
	m.setPopulated(summary.ChunksCreated > 0)
}

// Snapshot returns the current readiness view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:          m.state,
		Ready:          m.state == StateReady,
		IndexPopulated: m.indexPopulated,
	}
}

// MarkPopulated records that the index now holds vectors. Called after
// successful indexing runs.
func (m *Manager) MarkPopulated(populated bool) {
	m.setPopulated(populated)
}

// Cleanup releases registered resources in order.
func (m *Manager) Cleanup() {
	for _, fn := range m.closers {
		if err := fn(); err != nil {
			m.logger.Warn("Cleanup step failed", zap.Error(err))
		}
	}
}

func (m *Manager) fail(stage string, err error) bool {
	m.logger.Error("Initialization failed", zap.String("stage", stage), zap.Error(err))
	m.setState(StateFailed)
	return false
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) setPopulated(v bool) {
	m.mu.Lock()
	m.indexPopulated = v
	m.mu.Unlock()
}
