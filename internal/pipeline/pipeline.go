// Package pipeline runs the card extraction: upload both images, then per
// side OCR, chunk, retrieve and answer, then parse both answers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/cardex/internal/answer"
	"github.com/hyperjump/cardex/internal/extract"
	"github.com/hyperjump/cardex/internal/indexer"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/objectstore"
	"github.com/hyperjump/cardex/internal/ocr"
	"github.com/hyperjump/cardex/internal/search"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recorder receives run lifecycle events, e.g. to persist a run log.
// Recorder errors are logged and never fail the run.
type Recorder interface {
	RunStarted(ctx context.Context, runID string, at time.Time) error
	Transition(ctx context.Context, runID string, t Transition) error
	RunFinished(ctx context.Context, o *Outcome) error
}

// Input is one pair of card images.
type Input struct {
	// RunID is optional; a random ID is generated when empty.
	RunID string
	Front *models.Image
	Back  *models.Image
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Store      objectstore.Store
	Recognizer ocr.Recognizer
	Indexer    *indexer.Indexer
	Retriever  *search.Retriever
	Answerer   *answer.Answerer
	Parser     *extract.Parser
}

// Pipeline runs extractions. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	deps       Deps
	chunker    *indexer.Chunker
	queries    map[models.Side]models.Query
	keyPrefix  string
	topK       int
	concurrent bool
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRecorder forwards run events to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithQueries replaces the default front and back queries.
func WithQueries(front, back models.Query) Option {
	return func(p *Pipeline) {
		p.queries[models.SideFront] = front
		p.queries[models.SideBack] = back
	}
}

// WithChunker sets the chunker.
func WithChunker(c *indexer.Chunker) Option {
	return func(p *Pipeline) { p.chunker = c }
}

// WithTopK sets how many chunks are retrieved per side.
func WithTopK(k int) Option {
	return func(p *Pipeline) { p.topK = k }
}

// WithKeyPrefix sets the object key prefix for uploads.
func WithKeyPrefix(prefix string) Option {
	return func(p *Pipeline) { p.keyPrefix = prefix }
}

// WithConcurrency runs the two sides in parallel when true (the default).
func WithConcurrency(concurrent bool) Option {
	return func(p *Pipeline) { p.concurrent = concurrent }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. Every dependency is required.
func New(deps Deps, opts ...Option) (*Pipeline, error) {
	if deps.Store == nil || deps.Recognizer == nil || deps.Indexer == nil ||
		deps.Retriever == nil || deps.Answerer == nil || deps.Parser == nil {
		return nil, errors.New("pipeline: missing dependency")
	}
	p := &Pipeline{
		deps:       deps,
		chunker:    indexer.NewChunker(indexer.DefaultChunkSize, indexer.DefaultChunkOverlap),
		queries:    map[models.Side]models.Query{models.SideFront: models.DefaultFrontQuery(), models.SideBack: models.DefaultBackQuery()},
		keyPrefix:  "cards",
		topK:       search.DefaultTopK,
		concurrent: true,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, side := range models.Sides {
		q := p.queries[side]
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		if q.Side != side {
			return nil, fmt.Errorf("pipeline: %s query configured for %s side", q.Side, side)
		}
	}
	return p, nil
}

// Query returns the query used for side.
func (p *Pipeline) Query(side models.Side) models.Query { return p.queries[side] }

// run carries the mutable state of one execution.
type run struct {
	p       *Pipeline
	outcome *Outcome
	mu      sync.Mutex
	logger  *zap.Logger
}

func (r *run) transition(ctx context.Context, side models.Side, state State) {
	t := Transition{Side: side, State: state, At: r.p.now()}
	r.mu.Lock()
	r.outcome.Transitions = append(r.outcome.Transitions, t)
	r.outcome.State = state
	r.mu.Unlock()
	r.logger.Debug("transition", zap.String("side", string(side)), zap.String("state", string(state)))
	if r.p.recorder != nil {
		if err := r.p.recorder.Transition(context.WithoutCancel(ctx), r.outcome.RunID, t); err != nil {
			r.logger.Warn("run log transition failed", zap.Error(err))
		}
	}
}

// Run executes one extraction. Missing images fail validation with
// models.ErrMissingImage before any work and no Outcome. Otherwise the
// Outcome is always returned; the error is its failure, if any.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Outcome, error) {
	if in.Front.Empty() || in.Back.Empty() {
		return nil, models.ErrMissingImage
	}
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &run{
		p: p,
		outcome: &Outcome{
			RunID:     runID,
			State:     StateIdle,
			Front:     SideOutcome{Side: models.SideFront},
			Back:      SideOutcome{Side: models.SideBack},
			StartedAt: p.now(),
		},
		logger: p.logger.With(zap.String("run_id", runID)),
	}
	if p.recorder != nil {
		if err := p.recorder.RunStarted(context.WithoutCancel(ctx), runID, r.outcome.StartedAt); err != nil {
			r.logger.Warn("run log start failed", zap.Error(err))
		}
	}

	err := r.execute(ctx, in)
	o := r.outcome
	o.FinishedAt = p.now()
	if err != nil {
		o.err = err
		o.Reason = ReasonOf(err)
		var pe *Error
		if errors.As(err, &pe) {
			o.FailedSide = pe.Side
		}
		r.transition(ctx, "", StateFailed)
		r.logger.Warn("extraction failed",
			zap.String("reason", string(o.Reason)),
			zap.String("side", string(o.FailedSide)),
			zap.Int64("elapsed_ms", o.Elapsed().Milliseconds()),
			zap.Error(err))
	} else {
		r.transition(ctx, "", StateDone)
		r.logger.Info("extraction done", zap.Int64("elapsed_ms", o.Elapsed().Milliseconds()))
	}
	if p.recorder != nil {
		if rerr := p.recorder.RunFinished(context.WithoutCancel(ctx), o); rerr != nil {
			r.logger.Warn("run log finish failed", zap.Error(rerr))
		}
	}
	return o, err
}

func (r *run) execute(ctx context.Context, in Input) error {
	locs, err := r.upload(ctx, in)
	if err != nil {
		return err
	}

	answers := make(map[models.Side]string, 2)
	if err := r.answerSides(ctx, locs, answers); err != nil {
		return err
	}

	r.transition(ctx, "", StateParsingResults)
	var first error
	for _, side := range models.Sides {
		so := r.outcome.Side(side)
		rec, err := r.p.deps.Parser.Parse(side, answers[side])
		if err != nil {
			so.Err = err
			so.Reason = ReasonMalformedExtraction
			r.logger.Warn("answer is not a valid record", zap.String("side", string(side)), zap.Error(err))
			if first == nil {
				first = &Error{Reason: ReasonMalformedExtraction, Side: side, Err: err}
			}
			continue
		}
		so.Record = &rec
	}
	return first
}

// upload stores both images. Either failing fails the run; nothing else runs.
func (r *run) upload(ctx context.Context, in Input) (map[models.Side]objectstore.Locator, error) {
	r.transition(ctx, "", StateUploading)
	images := map[models.Side]*models.Image{models.SideFront: in.Front, models.SideBack: in.Back}
	locs := make(map[models.Side]objectstore.Locator, 2)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, side := range models.Sides {
		side := side
		g.Go(func() error {
			img := images[side]
			key := objectstore.ObjectKey(r.p.keyPrefix, r.outcome.RunID, side, img)
			contentType := img.ContentType
			if contentType == "" {
				contentType = objectstore.ContentTypeFor(key)
			}
			loc, err := r.p.deps.Store.Put(gctx, key, img.Data, contentType)
			if err != nil {
				return &Error{Reason: ReasonUpload, Side: side, Err: err}
			}
			mu.Lock()
			locs[side] = loc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locs, nil
}

// answerSides runs both sides, in parallel or front then back.
func (r *run) answerSides(ctx context.Context, locs map[models.Side]objectstore.Locator, answers map[models.Side]string) error {
	var mu sync.Mutex
	var first *Error
	do := func(ctx context.Context, side models.Side) error {
		raw, err := r.processSide(ctx, side, locs[side])
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			pe := classify(side, err)
			so := r.outcome.Side(side)
			so.Err, so.Reason = err, pe.Reason
			if first == nil && pe.Reason != ReasonCanceled {
				first = pe
			}
			return pe
		}
		answers[side] = raw
		return nil
	}

	if r.p.concurrent {
		g, gctx := errgroup.WithContext(ctx)
		for _, side := range models.Sides {
			side := side
			g.Go(func() error { return do(gctx, side) })
		}
		err := g.Wait()
		if first != nil {
			return first
		}
		return err
	}

	for i, side := range models.Sides {
		if err := do(ctx, side); err != nil {
			for _, skipped := range models.Sides[i+1:] {
				so := r.outcome.Side(skipped)
				so.Err, so.Reason = context.Canceled, ReasonCanceled
			}
			if first != nil {
				return first
			}
			return err
		}
	}
	return nil
}

// processSide is OCR, then chunk, index, retrieve and answer.
func (r *run) processSide(ctx context.Context, side models.Side, loc objectstore.Locator) (string, error) {
	logger := r.logger.With(zap.String("side", string(side)))

	r.transition(ctx, side, recognizingState(side))
	start := time.Now()
	text, err := r.p.deps.Recognizer.Recognize(ctx, loc)
	if err != nil {
		return "", err
	}
	logger.Debug("text recognized", zap.Int("chars", len(text)), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	r.transition(ctx, side, answeringState(side))
	start = time.Now()
	chunks := r.p.chunker.Split(indexer.Preprocess(text))
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: %s: no text after normalization", models.ErrOCRFailure, loc)
	}
	idx, err := r.p.deps.Indexer.Index(ctx, chunks)
	if err != nil {
		return "", err
	}
	defer idx.Close()

	query := r.p.queries[side]
	retrieved, err := r.p.deps.Retriever.Query(ctx, idx, query.Text, r.p.topK)
	if err != nil {
		return "", err
	}
	raw, err := r.p.deps.Answerer.Answer(ctx, query, retrieved)
	if err != nil {
		return "", err
	}
	logger.Debug("side answered",
		zap.Int("chunks", len(chunks)),
		zap.Int("retrieved", len(retrieved)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return raw, nil
}
