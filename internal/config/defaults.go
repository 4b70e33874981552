package config

import (
	"time"

	"github.com/hyperjump/cardex/internal/models"
)

// Accepted values for the provider and mode settings.
const (
	BackendS3 = "s3"
	BackendFS = "fs"

	OCRTextract = "textract"
	OCRMistral  = "mistral"
	OCRLocal    = "local"

	EmbedOpenAI  = "openai"
	EmbedONNX    = "onnx"
	EmbedHashing = "hashing"

	ModeSemantic = "semantic"
	ModeHybrid   = "hybrid"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 200
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendS3
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "cards"
	}
	if cfg.Storage.Backend == BackendFS && cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "./data/objects"
	}
	if cfg.Storage.RunLogPath == "" {
		cfg.Storage.RunLogPath = "./data/runs.db"
	}
	if cfg.OCR.Provider == "" {
		cfg.OCR.Provider = OCRTextract
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = 60 * time.Second
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbedOpenAI
	}
	if cfg.Embedding.Provider == EmbedOpenAI && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case EmbedONNX:
			cfg.Embedding.Dimensions = 384
		case EmbedHashing:
			cfg.Embedding.Dimensions = 256
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 45 * time.Second
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 512
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.Mode == "" {
		cfg.Retrieval.Mode = ModeSemantic
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
		cfg.Retrieval.SemanticWeight = 0.7
	}
	applyQueryDefaults(&cfg.Queries.Front, models.DefaultFrontQuery())
	applyQueryDefaults(&cfg.Queries.Back, models.DefaultBackQuery())
	if cfg.Watch.OutputDir == "" {
		cfg.Watch.OutputDir = "./data/results"
	}
}

func applyQueryDefaults(q *QueryConfig, def models.Query) {
	if q.Text == "" {
		q.Text = def.Text
		if q.Fields == nil {
			q.Fields = def.Fields
		}
	}
}
