package health

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheck(t *testing.T) {
	down := errors.New("unreachable")

	tests := []struct {
		name       string
		db, vs     error
		gen        error
		wantStatus Status
	}{
		{"all up", nil, nil, nil, StatusHealthy},
		{"database down", down, nil, nil, StatusDegraded},
		{"vector store down", nil, down, nil, StatusDegraded},
		{"generative down", nil, nil, down, StatusDegraded},
		{"all down", down, down, down, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&mockPinger{err: tt.db}, &mockPinger{err: tt.vs}, &mockChecker{err: tt.gen}, zap.NewNop())

			r := svc.Check(context.Background())
			if r.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", r.Status, tt.wantStatus)
			}
			if r.Database != (tt.db == nil) || r.VectorStore != (tt.vs == nil) || r.Generative != (tt.gen == nil) {
				t.Errorf("unexpected flags: %+v", r)
			}
		})
	}
}
