// Package main is the cardex CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/cardex/internal/cli"
	"github.com/hyperjump/cardex/internal/config"
	"github.com/hyperjump/cardex/internal/export"
	"github.com/hyperjump/cardex/internal/fileid"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/objectstore"
	"github.com/hyperjump/cardex/internal/pipeline"
	"github.com/hyperjump/cardex/internal/server"
	"github.com/hyperjump/cardex/internal/storage"
	"github.com/hyperjump/cardex/internal/watcher"
	"github.com/hyperjump/cardex/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/cardex/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, so commands run from a project
// directory pick up its config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "extract":
		runExtract()
	case "batch":
		runBatch()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("cardex version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config, builds the logger and wires the components.
// It exits the process on failure.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
	if err != nil {
		_ = logger.Sync()
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	srv, err := server.NewServer(components.Pipeline, components.RunLog, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// argsReorder moves flags to the front of args so that flag.Parse sees them.
// Go's flag package stops at the first non-flag, so "cardex extract a.jpg
// b.jpg --output json" would otherwise leave --output unparsed. Positional
// arguments keep their order. A flag named in boolFlags takes no value;
// any other flag without "=" consumes the following argument.
func argsReorder(args []string, boolFlags ...string) []string {
	flags := make([]string, 0, len(args))
	positional := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") || slices.Contains(boolFlags, name) {
			continue
		}
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return append(flags, positional...)
}

// readImage loads a card image from disk.
func readImage(path string) (*models.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(fileid.ImageExtensions, ext) {
		return nil, fmt.Errorf("%s: unsupported file type %q", path, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &models.Image{
		Filename:    filepath.Base(path),
		ContentType: objectstore.ContentTypeFor(path),
		Data:        data,
	}, nil
}

// runPair reads both sides of pair and runs the pipeline under the pair's stable run ID.
func runPair(ctx context.Context, p *pipeline.Pipeline, pair watcher.Pair) (*pipeline.Outcome, error) {
	front, err := readImage(pair.Front)
	if err != nil {
		return nil, err
	}
	back, err := readImage(pair.Back)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, pipeline.Input{RunID: pair.ID(), Front: front, Back: back})
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:], "debug"))

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: cardex extract [--config path] [--output text|json] <front> <back>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	front, err := readImage(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read front image: %v\n", err)
		os.Exit(1)
	}
	back, err := readImage(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read back image: %v\n", err)
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := components.Pipeline.Run(ctx, pipeline.Input{Front: front, Back: back})
	if outcome == nil {
		fmt.Fprintf(os.Stderr, "%s\n", pipeline.UserMessage(err))
		os.Exit(1)
	}
	if werr := cli.WriteOutcome(os.Stdout, outcome, err, cfg.Pipeline.PartialResults, format); werr != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", werr)
		os.Exit(1)
	}
	if err != nil {
		components.Close()
		_ = logger.Sync()
		os.Exit(2)
	}
}

func runBatch() {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	out := fs.String("out", "results.xlsx", "spreadsheet to write")
	recursive := fs.Bool("recursive", false, "include subdirectories")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:], "debug", "recursive"))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: cardex batch [--config path] [--out results.xlsx] <dir>")
		os.Exit(1)
	}
	pairs, err := watcher.ScanPairs(fs.Arg(0), *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to scan %s: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}
	if len(pairs) == 0 {
		fmt.Fprintf(os.Stderr, "No <name>_front/<name>_back pairs found in %s\n", fs.Arg(0))
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, failed := processBatch(ctx, components.Pipeline, pairs, logger)
	if err := writeWorkbookFile(*out, rows, components.Pipeline, cfg.Pipeline.PartialResults); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("Processed %d cards (%d failed), results in %s\n", len(rows), failed, *out)
}

// processBatch runs pairs one at a time, stopping early when ctx is canceled.
func processBatch(ctx context.Context, p *pipeline.Pipeline, pairs []watcher.Pair, logger *zap.Logger) ([]export.Row, int) {
	rows := make([]export.Row, 0, len(pairs))
	failed := 0
	for _, pair := range pairs {
		if ctx.Err() != nil {
			logger.Warn("batch interrupted", zap.Int("remaining", len(pairs)-len(rows)))
			break
		}
		outcome, err := runPair(ctx, p, pair)
		if err != nil {
			failed++
			logger.Warn("card failed", zap.String("card", pair.Name), zap.Error(err))
		}
		rows = append(rows, export.Row{Name: pair.Name, Outcome: outcome, Err: err})
	}
	return rows, failed
}

func writeWorkbookFile(path string, rows []export.Row, p *pipeline.Pipeline, partial bool) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	queries := []models.Query{p.Query(models.SideFront), p.Query(models.SideBack)}
	if err := export.WriteWorkbook(f, rows, queries, partial); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	if len(cfg.Watch.Directories) == 0 {
		fmt.Fprintln(os.Stderr, "No watch directories configured (watch.directories)")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pairs are processed one at a time; the watcher only enqueues.
	queue := make(chan watcher.Pair, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var pair watcher.Pair
			select {
			case pair = <-queue:
			case <-ctx.Done():
				return
			}
			outcome, err := runPair(ctx, components.Pipeline, pair)
			if outcome == nil {
				logger.Warn("watch: card skipped", zap.String("card", pair.Name), zap.Error(err))
				continue
			}
			path, werr := writePairResult(cfg.Watch.OutputDir, pair.Name, cli.NewResult(outcome, err, cfg.Pipeline.PartialResults))
			if werr != nil {
				logger.Error("watch: write result failed", zap.String("card", pair.Name), zap.Error(werr))
				continue
			}
			logger.Info("watch: card processed",
				zap.String("card", pair.Name),
				zap.String("state", string(outcome.State)),
				zap.String("result", path),
			)
		}
	}()

	w := watcher.NewWatcher(cfg.Watch.Directories, cfg.Watch.RecursiveOrDefault(), func(pair watcher.Pair) {
		select {
		case queue <- pair:
		case <-ctx.Done():
		}
	}, watcher.WithLogger(logger))
	if err := w.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start watcher: %v\n", err)
		return
	}
	w.SyncExistingFiles()
	logger.Info("watching for card images", zap.Strings("directories", cfg.Watch.Directories))

	<-ctx.Done()
	w.Stop()
	<-done
	logger.Info("watcher stopped", zap.Int("incomplete_pairs", w.Pending()))
}

// writePairResult writes res as <name>.json in dir and returns the file path.
func writePairResult(dir, name string, res cli.Result) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", err
	}
	return path, nil
}

type statusResponse struct {
	Config         *config.Config `json:"config,omitempty"`
	Runs           *storage.Stats `json:"runs,omitempty"`
	DiskUsageBytes *int64         `json:"disk_usage_bytes,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	if status.Runs != nil {
		fmt.Fprintf(w, "runs:               %d   # recorded pipeline runs\n", status.Runs.Runs)
		for _, state := range []pipeline.State{pipeline.StateDone, pipeline.StateFailed} {
			fmt.Fprintf(w, "  %-17s %d\n", string(state)+":", status.Runs.ByState[state])
		}
		for reason, n := range status.Runs.ByReason {
			fmt.Fprintf(w, "  %-17s %d\n", string(reason)+":", n)
		}
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # run log + local objects\n", *status.DiskUsageBytes)
	}
	if status.Config != nil {
		c := status.Config
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "storage_backend:    %s\n", c.Storage.Backend)
		if c.Storage.Bucket != "" {
			fmt.Fprintf(w, "bucket:             %s\n", c.Storage.Bucket)
		}
		fmt.Fprintf(w, "ocr_provider:       %s\n", c.OCR.Provider)
		fmt.Fprintf(w, "embedding:          %s\n", c.Embedding.Provider)
		fmt.Fprintf(w, "llm_model:          %s\n", c.LLM.Model)
		fmt.Fprintf(w, "retrieval_mode:     %s\n", c.Retrieval.Mode)
		fmt.Fprintf(w, "chunk_size:         %d\n", c.Retrieval.ChunkSize)
		fmt.Fprintf(w, "chunk_overlap:      %d\n", c.Retrieval.ChunkOverlapOrDefault())
		fmt.Fprintf(w, "top_k:              %d\n", c.Retrieval.TopK)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func printUsage() {
	fmt.Print(`cardex - ID card field extraction

Usage:
  cardex <command> [options]

Commands:
  server    Start the web form and HTTP API
  extract   Extract fields from one card: cardex extract <front> <back>
  batch     Extract every <name>_front/<name>_back pair in a directory to a spreadsheet
  watch     Watch inbox directories and write <name>.json per completed pair
  status    Show run counts and configuration of a running server
  version   Show version
  help      Show this help

Options:
  --config PATH     Config file (default: /usr/local/etc/cardex/config.yaml, or ./config.yaml)
  --debug           Enable debug logging
  --output FORMAT   text or json (extract, status)
  --out PATH        Spreadsheet path (batch, default results.xlsx)
  --recursive       Include subdirectories (batch)
  --server URL      Server URL (status, default http://localhost:8080)

Environment:
  OPENAI_API_KEY                     LLM and embedding API key
  AWS_ACCESS_KEY, AWS_SECRET_KEY     S3/Textract credentials
  AWS_BUCKET_NAME, AWS_REGION        S3 bucket and region
  OCR_API_KEY                        Key for the mistral OCR provider

Examples:
  cardex server --config ./config.yaml
  cardex extract id_front.jpg id_back.jpg --output json
  cardex batch ./scans --out cards.xlsx
`)
}
