// Package ocr obtains the raw text of a stored card image from an OCR
// service. Providers: AWS Textract, the Mistral OCR API, and local Tesseract
// (build tag "ocr").
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/objectstore"
)

// Provider names accepted in configuration.
const (
	ProviderTextract = "textract"
	ProviderMistral  = "mistral"
	ProviderLocal    = "local"
)

// Recognizer returns the text of the document at loc.
type Recognizer interface {
	Recognize(ctx context.Context, loc objectstore.Locator) (string, error)
}

// RequiresAPIKey reports whether provider authenticates with its own API key.
func RequiresAPIKey(provider string) bool {
	return provider == ProviderMistral
}

// failure wraps err as an OCR failure.
func failure(loc objectstore.Locator, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrOCRFailure, loc, err)
}

// nonEmpty turns blank output into an OCR failure.
func nonEmpty(loc objectstore.Locator, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s: no text detected", models.ErrOCRFailure, loc)
	}
	return text, nil
}
