// Package uploads stores user-supplied image files under random names.
package uploads

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// allowedExtensions is the image extension allow-list. Everything else is
// rejected before touching disk.
var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
	"svg":  {},
}

// Service writes uploaded files into a single flat directory.
type Service struct {
	dir    string
	logger *zap.Logger
}

// New creates the upload service and its target directory.
func New(dir string, logger *zap.Logger) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Service{dir: dir, logger: logger}, nil
}

// Dir returns the upload directory path.
func (s *Service) Dir() string {
	return s.dir
}

// Save validates the original filename's extension, stores the content under
// a random name, and returns the public path.
func (s *Service) Save(filename string, r io.Reader) (string, error) {
	ext, err := imageExtension(filename)
	if err != nil {
		return "", err
	}

	name := uuid.New().String() + "." + ext
	dst := filepath.Join(s.dir, name)

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("write upload %s: %w", name, err)
	}

	s.logger.Info("Stored upload", zap.String("original", filename), zap.String("stored", name))
	return "/uploads/" + name, nil
}

func imageExtension(filename string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return "", fmt.Errorf("file %q has no extension: %w", filename, domain.ErrInvalidUpload)
	}
	ext = strings.ToLower(ext)
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("extension %q not allowed: %w", ext, domain.ErrInvalidUpload)
	}
	return ext, nil
}
