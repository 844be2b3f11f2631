package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// --- Mocks ---

type mockVectors struct {
	total    int
	totalErr error
	matches  []domain.Match
	queryErr error
	lastTopK int
}

func (m *mockVectors) Query(_ context.Context, _ []float32, topK int) ([]domain.Match, error) {
	m.lastTopK = topK
	return m.matches, m.queryErr
}

func (m *mockVectors) Stats(_ context.Context) (int, error) {
	return m.total, m.totalErr
}

type mockEmbedder struct {
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type mockGenerator struct {
	text       string
	err        error
	called     bool
	lastPrompt string
	lastReq    domain.GenerationRequest
}

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	m.called = true
	m.lastPrompt = req.Prompt
	m.lastReq = req
	if m.err != nil {
		return domain.GenerationResult{}, m.err
	}
	return domain.GenerationResult{Text: m.text}, nil
}

func newTestService(v *mockVectors, e *mockEmbedder, g *mockGenerator) *Service {
	return New(v, e, g, zap.NewNop())
}

// --- Tests ---

func TestAnswer_EmptyIndex(t *testing.T) {
	vectors := &mockVectors{total: 0}
	emb := &mockEmbedder{}
	gen := &mockGenerator{}
	svc := newTestService(vectors, emb, gen)

	answer, err := svc.Answer(context.Background(), "what is Pikachu?", 3)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != NotIndexedMessage {
		t.Errorf("answer = %q, want the not-indexed message", answer)
	}
	if emb.called {
		t.Error("empty index must not embed the query")
	}
	if gen.called {
		t.Error("empty index must not call the generator")
	}
}

func TestAnswer_NothingAboveThreshold(t *testing.T) {
	vectors := &mockVectors{
		total: 50,
		matches: []domain.Match{
			{ID: "1_0", Score: 0.05, Text: "weak match"},
			{ID: "2_0", Score: 0.09, Text: "weaker match"},
		},
	}
	gen := &mockGenerator{}
	svc := newTestService(vectors, &mockEmbedder{}, gen)

	answer, err := svc.Answer(context.Background(), "quantum farming", 3)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != NothingFoundMessage("quantum farming") {
		t.Errorf("answer = %q", answer)
	}
	if gen.called {
		t.Error("no usable matches must not call the generator")
	}
}

func TestAnswer_Success(t *testing.T) {
	vectors := &mockVectors{
		total: 50,
		matches: []domain.Match{
			{ID: "1_0", Score: 0.92, Text: "Pikachu is an electric pokemon."},
			{ID: "1_1", Score: 0.45, Text: "It evolves into Raichu."},
			{ID: "2_0", Score: 0.03, Text: "Unrelated cooking tips."},
		},
	}
	gen := &mockGenerator{text: "Pikachu is an electric-type pokemon that evolves into Raichu."}
	svc := newTestService(vectors, &mockEmbedder{}, gen)

	answer, err := svc.Answer(context.Background(), "tell me about Pikachu", 3)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer, "electric-type") {
		t.Errorf("answer = %q", answer)
	}

	if !strings.Contains(gen.lastPrompt, "Pikachu is an electric pokemon.") {
		t.Error("prompt must contain the top excerpt")
	}
	if strings.Contains(gen.lastPrompt, "Unrelated cooking tips.") {
		t.Error("below-threshold excerpt must not reach the prompt")
	}
	if !strings.Contains(gen.lastPrompt, "Question: tell me about Pikachu") {
		t.Error("prompt must end with the user question")
	}
	if gen.lastReq.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", gen.lastReq.MaxTokens, DefaultMaxTokens)
	}
	if gen.lastReq.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", gen.lastReq.Temperature, DefaultTemperature)
	}
}

func TestAnswer_DefaultTopK(t *testing.T) {
	vectors := &mockVectors{total: 10, matches: []domain.Match{{Score: 0.9, Text: "x"}}}
	svc := newTestService(vectors, &mockEmbedder{}, &mockGenerator{text: "ok"})

	if _, err := svc.Answer(context.Background(), "q", 0); err != nil {
		t.Fatal(err)
	}
	if vectors.lastTopK != DefaultTopK {
		t.Errorf("topK = %d, want default %d", vectors.lastTopK, DefaultTopK)
	}
}

func TestAnswer_EmptyGenerationFallsBack(t *testing.T) {
	vectors := &mockVectors{total: 10, matches: []domain.Match{{Score: 0.9, Text: "x"}}}
	gen := &mockGenerator{text: "   \n "}
	svc := newTestService(vectors, &mockEmbedder{}, gen)

	answer, err := svc.Answer(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != FallbackMessage {
		t.Errorf("answer = %q, want fallback message", answer)
	}
}

func TestAnswer_EmbedErrorIsFatal(t *testing.T) {
	vectors := &mockVectors{total: 10}
	emb := &mockEmbedder{err: domain.ErrEmbeddingFailed}
	svc := newTestService(vectors, emb, &mockGenerator{})

	_, err := svc.Answer(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestAnswer_GenerateErrorIsFatal(t *testing.T) {
	vectors := &mockVectors{total: 10, matches: []domain.Match{{Score: 0.9, Text: "x"}}}
	gen := &mockGenerator{err: domain.ErrGenerationFailed}
	svc := newTestService(vectors, &mockEmbedder{}, gen)

	_, err := svc.Answer(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestAnswer_StatsErrorIsFatal(t *testing.T) {
	vectors := &mockVectors{totalErr: errors.New("store down")}
	svc := newTestService(vectors, &mockEmbedder{}, &mockGenerator{})

	if _, err := svc.Answer(context.Background(), "q", 3); err == nil {
		t.Fatal("expected error when stats are unavailable")
	}
}
