package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/hyperjump/cardex/internal/answer"
	"github.com/hyperjump/cardex/internal/config"
	"github.com/hyperjump/cardex/internal/embedding"
	"github.com/hyperjump/cardex/internal/extract"
	"github.com/hyperjump/cardex/internal/indexer"
	"github.com/hyperjump/cardex/internal/llm"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/objectstore"
	"github.com/hyperjump/cardex/internal/ocr"
	"github.com/hyperjump/cardex/internal/pipeline"
	"github.com/hyperjump/cardex/internal/search"
	"github.com/hyperjump/cardex/internal/storage"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

// Components holds everything a command needs to run the pipeline.
type Components struct {
	Store      objectstore.Store
	Recognizer ocr.Recognizer
	Embedder   embedding.Embedder
	RunLog     storage.RunLog
	Pipeline   *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.RunLog != nil {
		_ = c.RunLog.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Components{}

	var awsCfg aws.Config
	if cfg.Storage.Backend == config.BackendS3 || cfg.OCR.Provider == config.OCRTextract {
		var err error
		awsCfg, err = objectstore.LoadAWSConfig(ctx, cfg.Storage.Region, cfg.Storage.AccessKey, cfg.Storage.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("%w: aws: %v", config.ErrConfiguration, err)
		}
	}
	switch cfg.Storage.Backend {
	case config.BackendS3:
		c.Store = objectstore.NewS3Store(awsCfg, objectstore.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Endpoint:  cfg.Storage.Endpoint,
		}, objectstore.WithLogger(logger))
	default:
		fsStore, err := objectstore.NewFSStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object store: %w", err)
		}
		c.Store = fsStore
	}

	ocrOpts := []ocr.Option{ocr.WithLogger(logger), ocr.WithTimeout(cfg.OCR.Timeout)}
	switch cfg.OCR.Provider {
	case config.OCRMistral:
		c.Recognizer = ocr.NewMistralRecognizer(ocr.MistralConfig{
			APIKey:  cfg.OCR.APIKey,
			BaseURL: cfg.OCR.BaseURL,
			Model:   cfg.OCR.Model,
		}, c.Store, ocrOpts...)
	case config.OCRLocal:
		c.Recognizer = ocr.NewLocalRecognizer(c.Store, cfg.OCR.Language, ocrOpts...)
	default:
		c.Recognizer = ocr.NewTextractRecognizer(awsCfg, c.Store, ocrOpts...)
	}

	client := llm.NewClient(llm.ClientConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		MaxRetries: cfg.LLM.MaxRetriesOrDefault(),
		Timeout:    cfg.LLM.Timeout,
	})

	embedder, err := newEmbedder(cfg, client, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachingEmbedder(embedder, cfg.Embedding.CacheSize)
	}
	c.Embedder = embedder

	hybrid := cfg.Retrieval.Mode == config.ModeHybrid
	idxOpts := []indexer.IndexerOption{}
	retrOpts := []search.RetrieverOption{search.WithLogger(logger)}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	if hybrid {
		idxOpts = append(idxOpts, indexer.WithKeywordIndex())
		retrOpts = append(retrOpts, search.WithHybrid(cfg.Retrieval.KeywordWeight, cfg.Retrieval.SemanticWeight))
	}

	generator := llm.NewOpenAIGenerator(client,
		llm.WithLogger(logger),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithTimeout(cfg.LLM.Timeout),
	)

	front, back := cfg.Queries.Query(models.SideFront), cfg.Queries.Query(models.SideBack)
	parser, err := extract.NewParser([]models.Query{front, back}, extract.WithStrictKeys(cfg.Pipeline.StrictKeys))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: queries: %v", config.ErrConfiguration, err)
	}

	runLog, err := storage.NewSQLiteStorage(cfg.Storage.RunLogPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize run log: %w", err)
	}
	c.RunLog = runLog

	p, err := pipeline.New(pipeline.Deps{
		Store:      c.Store,
		Recognizer: c.Recognizer,
		Indexer:    indexer.NewIndexer(embedder, idxOpts...),
		Retriever:  search.NewRetriever(embedder, retrOpts...),
		Answerer:   answer.NewAnswerer(generator, answer.WithLogger(logger)),
		Parser:     parser,
	},
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(runLog),
		pipeline.WithQueries(front, back),
		pipeline.WithChunker(indexer.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlapOrDefault())),
		pipeline.WithTopK(cfg.Retrieval.TopK),
		pipeline.WithKeyPrefix(cfg.Storage.Prefix),
		pipeline.WithConcurrency(cfg.Pipeline.ConcurrentOrDefault()),
	)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Pipeline = p

	logger.Info("components initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("ocr", cfg.OCR.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.Int("embedding_dims", embedder.Dimensions()),
		zap.String("retrieval", cfg.Retrieval.Mode),
		zap.String("model", cfg.LLM.Model),
	)
	return c, nil
}

func newEmbedder(cfg *config.Config, client openai.Client, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.EmbedONNX:
		e, err := embedding.NewONNXEmbedder(cfg.Embedding.ModelPath, cfg.Embedding.TokenizerPath, cfg.Embedding.Dimensions, cfg.Embedding.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize onnx embedder: %w", err)
		}
		return e, nil
	case config.EmbedHashing:
		return embedding.NewHashingEmbedder(cfg.Embedding.Dimensions), nil
	default:
		return embedding.NewOpenAIEmbedder(client, cfg.Embedding.Model, cfg.Embedding.Dimensions, embedding.WithLogger(logger)), nil
	}
}
