package domain

import (
	"context"
	"strings"
)

// ImageRequest describes one image fetch attempt against a provider model.
type ImageRequest struct {
	Prompt string
	Model  string
	Width  int
	Height int
	Seed   int
}

// ImageResponse is the raw provider reply. Non-2xx and non-image replies are
// returned as values, not errors; only transport failures error out.
type ImageResponse struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// IsImage reports whether the response carries usable image bytes.
func (r ImageResponse) IsImage() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 &&
		strings.HasPrefix(r.ContentType, "image")
}

// ImageProvider fetches generated images over HTTP.
type ImageProvider interface {
	Fetch(ctx context.Context, req ImageRequest) (ImageResponse, error)
}
