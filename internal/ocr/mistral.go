package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/cardex/internal/objectstore"
	"github.com/hyperjump/cardex/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultMistralBaseURL = "https://api.mistral.ai"
	DefaultMistralModel   = "mistral-ocr-latest"
	presignTTL            = 15 * time.Minute
)

type mistralRequest struct {
	Model    string          `json:"model"`
	Document mistralDocument `json:"document"`
}

type mistralDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

// MistralRecognizer calls the hosted Mistral OCR endpoint. S3 objects are
// passed as presigned URLs; other objects are inlined as data URLs.
type MistralRecognizer struct {
	httpClient *http.Client
	store      objectstore.Store
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	logger     *zap.Logger
}

// MistralConfig holds the OCR API settings.
type MistralConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewMistralRecognizer creates a recognizer for the Mistral OCR API.
func NewMistralRecognizer(cfg MistralConfig, store objectstore.Store, opts ...Option) *MistralRecognizer {
	o := applyOptions(opts)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMistralBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultMistralModel
	}
	return &MistralRecognizer{
		httpClient: &http.Client{},
		store:      store,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    o.timeout,
		logger:     o.logger,
	}
}

// Recognize returns the text of every page, separated by blank lines.
func (r *MistralRecognizer) Recognize(ctx context.Context, loc objectstore.Locator) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := r.document(ctx, loc)
	if err != nil {
		return "", failure(loc, err)
	}
	body, err := json.Marshal(mistralRequest{Model: r.model, Document: doc})
	if err != nil {
		return "", failure(loc, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return "", failure(loc, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", failure(loc, fmt.Errorf("ocr http error: %w", err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			r.logger.Warn("ocr response body close error", zap.Error(err))
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", failure(loc, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", failure(loc, fmt.Errorf("ocr status %d: %s", resp.StatusCode, utils.Truncate(string(raw), 200)))
	}
	var out mistralResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", failure(loc, fmt.Errorf("decode ocr response: %w", err))
	}
	pages := make([]string, 0, len(out.Pages))
	for _, p := range out.Pages {
		pages = append(pages, p.Markdown)
	}
	r.logger.Debug("mistral ocr",
		zap.String("locator", loc.String()),
		zap.Int("pages", len(pages)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return nonEmpty(loc, strings.Join(pages, "\n\n"))
}

func (r *MistralRecognizer) document(ctx context.Context, loc objectstore.Locator) (mistralDocument, error) {
	contentType := objectstore.ContentTypeFor(loc.Key)
	var url string
	if loc.Scheme == "" || loc.Scheme == "s3" {
		u, err := r.store.Presign(ctx, loc, presignTTL)
		if err != nil {
			return mistralDocument{}, err
		}
		url = u
	} else {
		b, err := r.store.Get(ctx, loc)
		if err != nil {
			return mistralDocument{}, err
		}
		url = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(b)
	}
	if contentType == "application/pdf" {
		return mistralDocument{Type: "document_url", DocumentURL: url}, nil
	}
	return mistralDocument{Type: "image_url", ImageURL: url}, nil
}
