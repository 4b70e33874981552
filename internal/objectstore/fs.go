package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/cardex/internal/models"
)

// localBucket is the bucket name reported for objects in an FSStore.
const localBucket = "local"

// FSStore keeps objects under a local directory, for offline development.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: local directory not set", models.ErrStorage)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", models.ErrStorage, abs, err)
	}
	return &FSStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("%w: invalid key %q", models.ErrStorage, key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes body under key.
func (s *FSStore) Put(ctx context.Context, key string, body []byte, contentType string) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return Locator{}, err
	}
	p, err := s.path(key)
	if err != nil {
		return Locator{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Locator{}, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if err := os.WriteFile(p, body, 0o600); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Locator{}, fmt.Errorf("%w: %v", models.ErrNoCredentials, err)
		}
		return Locator{}, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return Locator{Scheme: "file", Bucket: localBucket, Key: key}, nil
}

// Get reads the object back.
func (s *FSStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(loc.Key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return b, nil
}

// Presign returns a file:// URL; the ttl is not enforced.
func (s *FSStore) Presign(ctx context.Context, loc Locator, ttl time.Duration) (string, error) {
	p, err := s.path(loc.Key)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(p), nil
}
