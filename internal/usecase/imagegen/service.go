// Package imagegen turns free-form user descriptions into stored images by
// composing an image prompt and walking a provider model fallback chain.
package imagegen

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
	"github.com/kailas-cloud/blograg/internal/metrics"
)

// Tier records which strategy produced the composed prompt.
type Tier string

const (
	// TierStrictJSON means the model reply parsed as the requested JSON object.
	TierStrictJSON Tier = "strict_json"
	// TierExtractedJSON means the JSON object was fished out of a noisy reply.
	TierExtractedJSON Tier = "extracted_json"
	// TierRawInput means composition fell back to the user's own words.
	TierRawInput Tier = "raw_input"
)

// DefaultRetries is attempts per model before moving down the chain.
const DefaultRetries = 5

// DefaultRetryDelay is the pause between attempts against the same model.
const DefaultRetryDelay = 2 * time.Second

// summaryMaxChars caps the fallback summary built from raw input.
const summaryMaxChars = 50

// DefaultModels is the provider model fallback chain, tried in order.
var DefaultModels = []string{"turbo", "flux", "kontext"}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

const composeInstruction = `You turn a user's description into an image generation prompt. Reply with ONLY a JSON object of the form {"summary": "...", "prompt": "..."}. The summary is a short title for the image, at most ten words. The prompt is a detailed, vivid description suitable for a text-to-image model.`

// ComposeResult is a composed prompt plus the tier that produced it.
type ComposeResult struct {
	Summary string
	Prompt  string
	Tier    Tier
}

// Service composes prompts and renders images to local files.
type Service struct {
	generator  domain.Generator
	provider   domain.ImageProvider
	models     []string
	retries    int
	retryDelay time.Duration
	uploadDir  string
	logger     *zap.Logger
}

// New creates an image generation service. generator may be nil, in which
// case composition always falls back to the raw user input.
func New(generator domain.Generator, provider domain.ImageProvider, uploadDir string, logger *zap.Logger) *Service {
	return &Service{
		generator:  generator,
		provider:   provider,
		models:     DefaultModels,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		uploadDir:  uploadDir,
		logger:     logger,
	}
}

// WithModels overrides the model fallback chain.
func (s *Service) WithModels(models []string) *Service {
	if len(models) > 0 {
		s.models = models
	}
	return s
}

// WithRetryPolicy overrides attempts per model and the delay between them.
func (s *Service) WithRetryPolicy(retries int, delay time.Duration) *Service {
	if retries > 0 {
		s.retries = retries
	}
	if delay >= 0 {
		s.retryDelay = delay
	}
	return s
}

// ComposePrompt asks the model for a {summary, prompt} JSON object. A strict
// parse is preferred, then a JSON object extracted from a noisy reply, then
// the raw user input. Composition never fails; the tier tells what happened.
func (s *Service) ComposePrompt(ctx context.Context, userInput string) ComposeResult {
	userInput = strings.TrimSpace(userInput)
	if s.generator == nil {
		return rawResult(userInput)
	}

	res, err := s.generator.Generate(ctx, domain.GenerationRequest{
		Prompt: composeInstruction + "\n\nUser description: " + userInput,
	})
	if err != nil {
		s.logger.Warn("Prompt composition failed, using raw input", zap.Error(err))
		return rawResult(userInput)
	}

	reply := strings.TrimSpace(res.Text)
	if reply == "" {
		return rawResult(userInput)
	}

	if out, ok := parseComposed(reply); ok {
		out.Tier = TierStrictJSON
		return out
	}
	if extracted := jsonObjectRe.FindString(reply); extracted != "" {
		if out, ok := parseComposed(extracted); ok {
			out.Tier = TierExtractedJSON
			return out
		}
	}

	s.logger.Warn("Composition reply not parseable, using raw input",
		zap.Int("reply_len", len(reply)),
	)
	return rawResult(userInput)
}

func parseComposed(text string) (ComposeResult, bool) {
	var payload struct {
		Summary string `json:"summary"`
		Prompt  string `json:"prompt"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return ComposeResult{}, false
	}
	summary := strings.TrimSpace(payload.Summary)
	prompt := strings.TrimSpace(payload.Prompt)
	if summary == "" || prompt == "" {
		return ComposeResult{}, false
	}
	return ComposeResult{Summary: summary, Prompt: prompt}, true
}

func rawResult(userInput string) ComposeResult {
	summary := userInput
	if r := []rune(summary); len(r) > summaryMaxChars {
		summary = string(r[:summaryMaxChars])
	}
	return ComposeResult{Summary: summary, Prompt: userInput, Tier: TierRawInput}
}

// Render fetches an image for the prompt, trying each model in the chain
// with a fixed-delay retry budget before moving to the next. The winning
// image lands in the upload directory and its public path is returned.
// retries <= 0 uses the service default.
func (s *Service) Render(ctx context.Context, prompt string, width, height, seed, retries int) (string, error) {
	if retries <= 0 {
		retries = s.retries
	}

	for _, model := range s.models {
		path, err := s.renderWithModel(ctx, prompt, model, width, height, seed, retries)
		if err == nil {
			metrics.ImagesGeneratedTotal.WithLabelValues(model).Inc()
			s.logger.Info("Generated image", zap.String("model", model), zap.String("path", path))
			return path, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("render image: %w", ctx.Err())
		}
		s.logger.Warn("Model exhausted, trying next",
			zap.String("model", model),
			zap.Int("retries", retries),
			zap.Error(err),
		)
	}

	return "", domain.ErrImageProvidersExhausted
}

func (s *Service) renderWithModel(ctx context.Context, prompt, model string, width, height, seed, retries int) (string, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), uint64(retries-1)),
		ctx,
	)

	var saved string
	err := backoff.Retry(func() error {
		resp, err := s.provider.Fetch(ctx, domain.ImageRequest{
			Prompt: prompt,
			Model:  model,
			Width:  width,
			Height: height,
			Seed:   seed,
		})
		if err != nil {
			metrics.ImageAttemptsTotal.WithLabelValues(model, "error").Inc()
			return err
		}
		if !resp.IsImage() {
			metrics.ImageAttemptsTotal.WithLabelValues(model, "rejected").Inc()
			return fmt.Errorf("model %s: status %d content-type %q", model, resp.StatusCode, resp.ContentType)
		}

		metrics.ImageAttemptsTotal.WithLabelValues(model, "ok").Inc()

		path, err := s.saveImage(resp.Body, model)
		if err != nil {
			// Local disk trouble will not improve on retry.
			return backoff.Permanent(err)
		}
		saved = path
		return nil
	}, policy)
	if err != nil {
		return "", err
	}
	return saved, nil
}

func (s *Service) saveImage(body []byte, model string) (string, error) {
	u := uuid.New()
	name := fmt.Sprintf("%s_%s.webp", hex.EncodeToString(u[:]), model)

	if err := os.WriteFile(filepath.Join(s.uploadDir, name), body, 0o644); err != nil {
		return "", fmt.Errorf("save image %s: %w", name, err)
	}
	return "/uploads/" + name, nil
}
