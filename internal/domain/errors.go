package domain

import "errors"

var (
	// ErrNotReady signals that core services have not finished initialization.
	ErrNotReady = errors.New("services not initialized")
	// ErrPostNotFound signals a missing blog post.
	ErrPostNotFound = errors.New("post not found")
	// ErrEmbeddingFailed signals an embedding provider failure or empty response.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrGenerationFailed signals a generative model transport failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrImageProvidersExhausted signals that every image provider ran out of retries.
	ErrImageProvidersExhausted = errors.New("all image providers failed")
	// ErrInvalidUpload signals a rejected upload (missing or disallowed extension).
	ErrInvalidUpload = errors.New("invalid upload")
)
