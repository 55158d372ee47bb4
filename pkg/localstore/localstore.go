// Package localstore keeps worksheet images in a directory on disk. It is
// used by the command line grader where no object storage is configured.
package localstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store writes uploads below a root directory.
type Store struct {
	root   string
	logger zerolog.Logger
}

// New creates root if needed.
func New(root string, logger zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: abs, logger: logger.With().Str("component", "local_store").Logger()}, nil
}

// Upload copies reader into a uniquely named file and returns its file URL.
func (s *Store) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "worksheet"
	}
	path := filepath.Join(s.root, uuid.NewString()[:8]+"-"+base)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", base, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	s.logger.Debug().Str("path", path).Msg("worksheet image stored")
	return "file://" + filepath.ToSlash(path), nil
}
