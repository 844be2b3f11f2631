// Package assistant answers questions grounded in indexed blog content.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 3

// DefaultMinScore is the similarity threshold a match must exceed to be used.
const DefaultMinScore = 0.1

// DefaultMaxTokens bounds the generated answer length.
const DefaultMaxTokens = 2048

// DefaultTemperature keeps answers close to the retrieved material.
const DefaultTemperature = 0.2

// NotIndexedMessage is returned when the index holds no vectors at all.
const NotIndexedMessage = "I don't have any blog content indexed yet! " +
	"Please index some blogs first so I can help you find information."

// FallbackMessage is returned when the model produced no usable answer.
const FallbackMessage = "I'm having trouble generating a response right now. Please try again!!!"

const systemInstruction = `You are a friendly and helpful blog assistant. Answer the user's question using only the blog excerpts provided below. Be conversational and concise. If the excerpts do not contain the answer, say so honestly instead of guessing.`

// NothingFoundMessage is returned when no match clears the score threshold.
func NothingFoundMessage(query string) string {
	return fmt.Sprintf("I couldn't find specific information about %q in our blog database.", query)
}

// Service runs the retrieval-augmented answer pipeline.
type Service struct {
	vectors     VectorSearcher
	embedder    domain.Embedder
	generator   domain.Generator
	minScore    float64
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

// New creates an answering service with default retrieval and generation
// settings.
func New(vectors VectorSearcher, embedder domain.Embedder, generator domain.Generator, logger *zap.Logger) *Service {
	return &Service{
		vectors:     vectors,
		embedder:    embedder,
		generator:   generator,
		minScore:    DefaultMinScore,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		logger:      logger,
	}
}

// WithMinScore overrides the similarity threshold.
func (s *Service) WithMinScore(score float64) *Service {
	if score >= 0 {
		s.minScore = score
	}
	return s
}

// WithGeneration overrides answer token budget and temperature.
func (s *Service) WithGeneration(maxTokens int, temperature float64) *Service {
	if maxTokens > 0 {
		s.maxTokens = maxTokens
	}
	if temperature >= 0 {
		s.temperature = temperature
	}
	return s
}

// Answer resolves a question against the index. The canned messages for an
// empty index, no relevant matches, and a silent model are returned as normal
// answers, not errors; only infrastructure failures error out.
func (s *Service) Answer(ctx context.Context, query string, topK int) (string, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	total, err := s.vectors.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("check index population: %w", err)
	}
	if total == 0 {
		return NotIndexedMessage, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	matches, err := s.vectors.Query(ctx, emb.Embedding, topK)
	if err != nil {
		return "", fmt.Errorf("search index: %w", err)
	}

	excerpts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Score > s.minScore {
			excerpts = append(excerpts, m.Text)
		}
	}
	if len(excerpts) == 0 {
		s.logger.Info("No matches above threshold",
			zap.Int("candidates", len(matches)),
			zap.Float64("min_score", s.minScore),
		)
		return NothingFoundMessage(query), nil
	}

	res, err := s.generator.Generate(ctx, domain.GenerationRequest{
		Prompt:      buildPrompt(excerpts, query),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	answer := strings.TrimSpace(res.Text)
	if answer == "" {
		s.logger.Warn("Model returned empty answer", zap.String("query", query))
		return FallbackMessage, nil
	}
	return answer, nil
}

func buildPrompt(excerpts []string, query string) string {
	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\nBlog excerpts:\n\n")
	for i, text := range excerpts {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, text)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
