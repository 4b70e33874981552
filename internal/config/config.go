// Package config provides configuration loading and structs for the cardex server and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/cardex/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration is returned when required settings are missing or invalid.
var ErrConfiguration = errors.New("configuration error")

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" json:"debug"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	OCR       OCRConfig       `yaml:"ocr" json:"ocr"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Pipeline  PipelineConfig  `yaml:"pipeline" json:"pipeline"`
	Queries   QueriesConfig   `yaml:"queries" json:"queries"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	MaxUploadMB int64  `yaml:"max_upload_mb" json:"max_upload_mb"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the object store and holds its credentials.
type StorageConfig struct {
	Backend    string `yaml:"backend" json:"backend"`
	Bucket     string `yaml:"bucket" json:"bucket"`
	Region     string `yaml:"region" json:"region"`
	AccessKey  string `yaml:"access_key" json:"-"`
	SecretKey  string `yaml:"secret_key" json:"-"`
	Endpoint   string `yaml:"endpoint" json:"endpoint,omitempty"`
	Prefix     string `yaml:"prefix" json:"prefix"`
	LocalDir   string `yaml:"local_dir" json:"local_dir,omitempty"`
	RunLogPath string `yaml:"run_log_path" json:"run_log_path"`
}

// OCRConfig selects the text recognition provider.
type OCRConfig struct {
	Provider string        `yaml:"provider" json:"provider"`
	APIKey   string        `yaml:"api_key" json:"-"`
	BaseURL  string        `yaml:"base_url" json:"base_url,omitempty"`
	Model    string        `yaml:"model" json:"model,omitempty"`
	Language string        `yaml:"language" json:"language"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// EmbeddingConfig selects the embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model,omitempty"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	ModelPath  string `yaml:"model_path" json:"model_path,omitempty"`
	// TokenizerPath is a HuggingFace tokenizer.json for the onnx model;
	// empty falls back to hashed word IDs.
	TokenizerPath string `yaml:"tokenizer_path" json:"tokenizer_path,omitempty"`
	MaxTokens  int    `yaml:"max_tokens" json:"max_tokens,omitempty"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig holds the generative model settings. The API key is shared
// with the OpenAI embedder.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key" json:"-"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  *int          `yaml:"max_retries" json:"max_retries"`
}

// MaxRetriesOrDefault returns the retry budget, 2 when unset.
func (l LLMConfig) MaxRetriesOrDefault() int {
	if l.MaxRetries != nil {
		return *l.MaxRetries
	}
	return 2
}

// RetrievalConfig holds chunking and ranking settings.
type RetrievalConfig struct {
	ChunkSize      int     `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap   *int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	TopK           int     `yaml:"top_k" json:"top_k"`
	Mode           string  `yaml:"mode" json:"mode"`
	KeywordWeight  float64 `yaml:"keyword_weight" json:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
}

// ChunkOverlapOrDefault returns the overlap in runes, 32 when unset. Zero is a
// valid setting.
func (r RetrievalConfig) ChunkOverlapOrDefault() int {
	if r.ChunkOverlap != nil {
		return *r.ChunkOverlap
	}
	return 32
}

// PipelineConfig holds run behaviour switches.
type PipelineConfig struct {
	Concurrent     *bool `yaml:"concurrent" json:"concurrent"`
	PartialResults bool  `yaml:"partial_results" json:"partial_results"`
	StrictKeys     bool  `yaml:"strict_keys" json:"strict_keys"`
}

// ConcurrentOrDefault returns whether sides run in parallel; defaults to true when unset.
func (p PipelineConfig) ConcurrentOrDefault() bool {
	if p.Concurrent != nil {
		return *p.Concurrent
	}
	return true
}

// QueriesConfig overrides the per-side queries.
type QueriesConfig struct {
	Front QueryConfig `yaml:"front" json:"front"`
	Back  QueryConfig `yaml:"back" json:"back"`
}

// QueryConfig is one side's query text and expected field names.
type QueryConfig struct {
	Text   string   `yaml:"text" json:"text"`
	Fields []string `yaml:"fields" json:"fields"`
}

// Query returns the configured query for side.
func (q QueriesConfig) Query(side models.Side) models.Query {
	c := q.Front
	if side == models.SideBack {
		c = q.Back
	}
	return models.Query{Side: side, Text: c.Text, Fields: c.Fields}
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories" json:"directories"`
	OutputDir   string   `yaml:"output_dir" json:"output_dir"`
	Recursive   *bool    `yaml:"recursive" json:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// Load reads the config file at path, applies defaults and environment
// overrides, and expands paths. A missing file yields defaults plus
// environment; call Validate before use.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		configDir = filepath.Dir(path)
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.LookupEnv)

	cfg.Storage.RunLogPath = expandPath(cfg.Storage.RunLogPath, configDir)
	cfg.Storage.LocalDir = expandPath(cfg.Storage.LocalDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	cfg.Watch.OutputDir = expandPath(cfg.Watch.OutputDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// ApplyEnv overrides secrets and storage location from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	set(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	set(&cfg.OCR.APIKey, "OCR_API_KEY", "LLAMA_CLOUD_API_KEY")
	set(&cfg.Storage.AccessKey, "AWS_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	set(&cfg.Storage.SecretKey, "AWS_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	set(&cfg.Storage.Bucket, "AWS_BUCKET_NAME")
	set(&cfg.Storage.Region, "AWS_REGION")
}

// Validate fails with ErrConfiguration naming every missing or invalid setting.
func (c *Config) Validate() error {
	var problems []string
	missing := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" is required")
		}
	}
	oneOf := func(name, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		problems = append(problems, fmt.Sprintf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value))
	}

	missing("llm.api_key (OPENAI_API_KEY)", c.LLM.APIKey)

	oneOf("storage.backend", c.Storage.Backend, BackendS3, BackendFS)
	switch c.Storage.Backend {
	case BackendS3:
		missing("storage.access_key (AWS_ACCESS_KEY)", c.Storage.AccessKey)
		missing("storage.secret_key (AWS_SECRET_KEY)", c.Storage.SecretKey)
		missing("storage.bucket (AWS_BUCKET_NAME)", c.Storage.Bucket)
		missing("storage.region (AWS_REGION)", c.Storage.Region)
	case BackendFS:
		missing("storage.local_dir", c.Storage.LocalDir)
	}

	oneOf("ocr.provider", c.OCR.Provider, OCRTextract, OCRMistral, OCRLocal)
	switch c.OCR.Provider {
	case OCRMistral:
		missing("ocr.api_key (OCR_API_KEY)", c.OCR.APIKey)
	case OCRTextract:
		// Local objects are sent as bytes, but Textract still needs AWS credentials.
		if c.Storage.Backend == BackendFS {
			missing("storage.access_key (AWS_ACCESS_KEY)", c.Storage.AccessKey)
			missing("storage.secret_key (AWS_SECRET_KEY)", c.Storage.SecretKey)
			missing("storage.region (AWS_REGION)", c.Storage.Region)
		}
	}

	oneOf("embedding.provider", c.Embedding.Provider, EmbedOpenAI, EmbedONNX, EmbedHashing)
	if c.Embedding.Provider == EmbedONNX {
		missing("embedding.model_path", c.Embedding.ModelPath)
	}
	oneOf("retrieval.mode", c.Retrieval.Mode, ModeSemantic, ModeHybrid)
	if overlap := c.Retrieval.ChunkOverlapOrDefault(); overlap < 0 {
		problems = append(problems, "retrieval.chunk_overlap cannot be negative")
	} else if overlap >= c.Retrieval.ChunkSize {
		problems = append(problems, "retrieval.chunk_overlap must be smaller than retrieval.chunk_size")
	}
	if c.LLM.MaxRetriesOrDefault() < 0 {
		problems = append(problems, "llm.max_retries cannot be negative")
	}
	for _, side := range models.Sides {
		q := c.Queries.Query(side)
		if err := q.Validate(); err != nil {
			problems = append(problems, "queries."+string(side)+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" is the home directory; other relative paths are left as they are.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
