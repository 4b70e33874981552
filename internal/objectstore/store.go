// Package objectstore uploads card images and hands out locators the OCR
// service can read. Backends: S3 and a local directory.
package objectstore

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/cardex/internal/models"
)

// Backend names accepted in configuration.
const (
	BackendS3 = "s3"
	BackendFS = "fs"
)

// Store is the object store client.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (Locator, error)
	Get(ctx context.Context, loc Locator) ([]byte, error)
	// Presign returns a time-limited URL for reading the object.
	Presign(ctx context.Context, loc Locator, ttl time.Duration) (string, error)
}

// Locator identifies a stored object.
type Locator struct {
	Scheme string `json:"scheme"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the locator as scheme://bucket/key.
func (l Locator) String() string {
	scheme := l.Scheme
	if scheme == "" {
		scheme = "s3"
	}
	return scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseLocator parses the output of Locator.String.
func ParseLocator(s string) (Locator, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || scheme == "" {
		return Locator{}, fmt.Errorf("invalid locator %q: missing scheme", s)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Locator{}, fmt.Errorf("invalid locator %q: want %s://bucket/key", s, scheme)
	}
	return Locator{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// ObjectKey builds <prefix>/<runID>/<side><ext>. The extension comes from the
// uploaded filename, then the content type, then defaults to .jpg.
func ObjectKey(prefix, runID string, side models.Side, img *models.Image) string {
	name := string(side) + imageExt(img)
	return path.Join(strings.Trim(prefix, "/"), runID, name)
}

func imageExt(img *models.Image) string {
	if img != nil {
		switch ext := strings.ToLower(filepath.Ext(img.Filename)); ext {
		case ".jpg", ".jpeg", ".png", ".pdf", ".tif", ".tiff", ".webp":
			return ext
		}
		switch strings.ToLower(img.ContentType) {
		case "image/png":
			return ".png"
		case "application/pdf":
			return ".pdf"
		case "image/tiff":
			return ".tiff"
		case "image/webp":
			return ".webp"
		}
	}
	return ".jpg"
}

// ContentTypeFor returns the MIME type for an object key's extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
