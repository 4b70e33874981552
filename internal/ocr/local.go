package ocr

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/hyperjump/cardex/internal/objectstore"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// LocalRecognizer reads the object back from the store and extracts text on
// this host: the embedded text layer for PDFs, Tesseract for images.
type LocalRecognizer struct {
	store    objectstore.Store
	language string
	logger   *zap.Logger
}

// NewLocalRecognizer creates a recognizer. language is a Tesseract language
// list such as "eng" or "eng+ara".
func NewLocalRecognizer(store objectstore.Store, language string, opts ...Option) *LocalRecognizer {
	o := applyOptions(opts)
	if language == "" {
		language = "eng"
	}
	return &LocalRecognizer{store: store, language: language, logger: o.logger}
}

// Recognize extracts the text of the object at loc.
func (r *LocalRecognizer) Recognize(ctx context.Context, loc objectstore.Locator) (string, error) {
	b, err := r.store.Get(ctx, loc)
	if err != nil {
		return "", failure(loc, err)
	}
	var text string
	if strings.EqualFold(path.Ext(loc.Key), ".pdf") {
		text, err = extractPDF(b)
	} else {
		text, err = recognizeImage(b, r.language)
	}
	if err != nil {
		return "", failure(loc, err)
	}
	r.logger.Debug("local ocr", zap.String("locator", loc.String()), zap.Int("chars", len(text)))
	return nonEmpty(loc, text)
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i+1, err)
		}
		buf.WriteString(text)
		if i < numPages-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}
