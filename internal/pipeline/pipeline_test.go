package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/cardex/internal/answer"
	"github.com/hyperjump/cardex/internal/embedding"
	"github.com/hyperjump/cardex/internal/extract"
	"github.com/hyperjump/cardex/internal/indexer"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/objectstore"
	"github.com/hyperjump/cardex/internal/search"
)

const (
	frontText = "REPUBLIC ID CARD\nName: Jane Doe\nCard ID: 123-4567-8901234-5\nDOB 01/02/1990\nIssued 03/04/2020\nExpires 03/04/2030"
	backText  = "Occupation: Engineer\nEmployer: ACME Corp\nAddress: 1 Main St"

	frontJSON = `{"Full Name": "Jane Doe", "Card ID Number": "123-4567-8901234-5", "Date of Birth": "01/02/1990", "Issue Date": "03/04/2020", "Expiry Date": "03/04/2030"}`
	backJSON  = "```json\n{\"Occupation\": \"Engineer\", \"Employer\": \"ACME Corp\"}\n```"
)

// fakeStore records puts and can fail for one side.
type fakeStore struct {
	mu     sync.Mutex
	puts   []string
	failOn string
}

func (s *fakeStore) Put(_ context.Context, key string, _ []byte, _ string) (objectstore.Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && strings.Contains(key, "/"+s.failOn) {
		return objectstore.Locator{}, fmt.Errorf("%w: put %s: access denied", models.ErrStorage, key)
	}
	s.puts = append(s.puts, key)
	return objectstore.Locator{Scheme: "s3", Bucket: "cards", Key: key}, nil
}

func (s *fakeStore) Get(context.Context, objectstore.Locator) ([]byte, error) { return nil, nil }

func (s *fakeStore) Presign(context.Context, objectstore.Locator, time.Duration) (string, error) {
	return "", nil
}

// fakeRecognizer returns text per side, inferred from the object key.
type fakeRecognizer struct {
	mu    sync.Mutex
	calls int
	text  map[models.Side]string
	err   map[models.Side]error
	block models.Side
}

func sideOf(loc objectstore.Locator) models.Side {
	if strings.Contains(loc.Key, "/back") {
		return models.SideBack
	}
	return models.SideFront
}

func (r *fakeRecognizer) Recognize(ctx context.Context, loc objectstore.Locator) (string, error) {
	side := sideOf(loc)
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if side == r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := r.err[side]; err != nil {
		return "", err
	}
	return r.text[side], nil
}

// fakeGenerator answers by which query the prompt contains.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answers map[models.Side]string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if strings.Contains(prompt, models.DefaultBackQuery().Text) {
		return g.answers[models.SideBack], nil
	}
	return g.answers[models.SideFront], nil
}

type memRecorder struct {
	mu          sync.Mutex
	started     int
	transitions []Transition
	finished    *Outcome
}

func (m *memRecorder) RunStarted(context.Context, string, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return nil
}

func (m *memRecorder) Transition(_ context.Context, _ string, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *memRecorder) RunFinished(_ context.Context, o *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = o
	return nil
}

type fixture struct {
	store *fakeStore
	ocr   *fakeRecognizer
	gen   *fakeGenerator
	rec   *memRecorder
}

func newFixture() *fixture {
	return &fixture{
		store: &fakeStore{},
		ocr: &fakeRecognizer{
			text: map[models.Side]string{models.SideFront: frontText, models.SideBack: backText},
			err:  map[models.Side]error{},
		},
		gen: &fakeGenerator{answers: map[models.Side]string{models.SideFront: frontJSON, models.SideBack: backJSON}},
		rec: &memRecorder{},
	}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	embedder := embedding.NewHashingEmbedder(64)
	parser, err := extract.NewParser([]models.Query{models.DefaultFrontQuery(), models.DefaultBackQuery()})
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	p, err := New(Deps{
		Store:      f.store,
		Recognizer: f.ocr,
		Indexer:    indexer.NewIndexer(embedder, indexer.WithKeywordIndex()),
		Retriever:  search.NewRetriever(embedder, search.WithHybrid(0.3, 0.7)),
		Answerer:   answer.NewAnswerer(f.gen),
		Parser:     parser,
	}, append([]Option{WithRecorder(f.rec)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func cardInput() Input {
	return Input{
		RunID: "run-1",
		Front: &models.Image{Filename: "front.png", ContentType: "image/png", Data: []byte("front")},
		Back:  &models.Image{Filename: "back.jpg", ContentType: "image/jpeg", Data: []byte("back")},
	}
}

func indexOf(ts []Transition, side models.Side, state State) int {
	for i, t := range ts {
		if t.Side == side && t.State == state {
			return i
		}
	}
	return -1
}

func TestRun_BothSides(t *testing.T) {
	for _, concurrent := range []bool{true, false} {
		t.Run(fmt.Sprintf("concurrent=%v", concurrent), func(t *testing.T) {
			f := newFixture()
			p := f.pipeline(t, WithConcurrency(concurrent))

			o, err := p.Run(context.Background(), cardInput())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if o.State != StateDone {
				t.Fatalf("state = %s, want done", o.State)
			}
			if o.Front.Record.Len() != 5 || o.Back.Record.Len() != 2 {
				t.Fatalf("fields: front %d back %d", o.Front.Record.Len(), o.Back.Record.Len())
			}
			if v, _ := o.Front.Record.Get("Full Name"); v != "Jane Doe" {
				t.Errorf("Full Name = %q", v)
			}
			if v, _ := o.Back.Record.Get("Employer"); v != "ACME Corp" {
				t.Errorf("Employer = %q", v)
			}
			if got := o.Visible(false); len(got) != 2 || got[0].Side != models.SideFront {
				t.Errorf("Visible = %+v", got)
			}
			if len(f.store.puts) != 2 {
				t.Errorf("puts = %v", f.store.puts)
			}
			if len(f.gen.prompts) != 2 {
				t.Errorf("generator calls = %d, want 2", len(f.gen.prompts))
			}
			if f.rec.started != 1 || f.rec.finished != o {
				t.Errorf("recorder not notified: started=%d finished=%v", f.rec.started, f.rec.finished)
			}
		})
	}
}

func TestRun_TransitionOrder(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)
	o, err := p.Run(context.Background(), cardInput())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ts := o.Transitions
	if ts[0].State != StateUploading {
		t.Errorf("first state = %s, want uploading", ts[0].State)
	}
	if last := ts[len(ts)-1]; last.State != StateDone {
		t.Errorf("last state = %s, want done", last.State)
	}
	parsing := indexOf(ts, "", StateParsingResults)
	for _, side := range models.Sides {
		rec := indexOf(ts, side, recognizingState(side))
		ans := indexOf(ts, side, answeringState(side))
		if rec < 0 || ans < 0 {
			t.Fatalf("%s: missing transitions in %+v", side, ts)
		}
		if !(rec < ans && ans < parsing) {
			t.Errorf("%s: recognize=%d answer=%d parse=%d", side, rec, ans, parsing)
		}
	}
	if len(f.rec.transitions) != len(ts) {
		t.Errorf("recorder saw %d transitions, outcome has %d", len(f.rec.transitions), len(ts))
	}
}

func TestRun_MissingImage(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)
	in := cardInput()
	in.Front = nil

	o, err := p.Run(context.Background(), in)
	if !errors.Is(err, models.ErrMissingImage) {
		t.Fatalf("err = %v, want ErrMissingImage", err)
	}
	if o != nil {
		t.Errorf("outcome = %+v, want nil", o)
	}
	if len(f.store.puts) != 0 || f.ocr.calls != 0 || len(f.gen.prompts) != 0 {
		t.Error("no work should happen without both images")
	}
	if f.rec.started != 0 {
		t.Error("no run should be recorded")
	}
	if UserMessage(err) != MsgMissingImage {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestRun_UploadFailure(t *testing.T) {
	f := newFixture()
	f.store.failOn = "back"
	p := f.pipeline(t)

	o, err := p.Run(context.Background(), cardInput())
	if ReasonOf(err) != ReasonUpload {
		t.Fatalf("reason = %s (%v), want upload_error", ReasonOf(err), err)
	}
	if o.State != StateFailed || o.FailedSide != models.SideBack {
		t.Errorf("state=%s side=%s", o.State, o.FailedSide)
	}
	if f.ocr.calls != 0 || len(f.gen.prompts) != 0 {
		t.Error("recognition must not start after a failed upload")
	}
	if got := o.Visible(true); got != nil {
		t.Errorf("Visible = %+v, want nothing", got)
	}
	if UserMessage(err) != MsgUploadFailed {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestRun_MalformedAnswer(t *testing.T) {
	f := newFixture()
	f.gen.answers[models.SideBack] = "Occupation is Engineer"
	p := f.pipeline(t)

	o, err := p.Run(context.Background(), cardInput())
	if ReasonOf(err) != ReasonMalformedExtraction {
		t.Fatalf("reason = %s (%v)", ReasonOf(err), err)
	}
	if !errors.Is(err, models.ErrMalformedOutput) {
		t.Errorf("err should wrap ErrMalformedOutput: %v", err)
	}
	if o.FailedSide != models.SideBack || o.Front.Record == nil || o.Back.Record != nil {
		t.Errorf("unexpected sides: %+v", o)
	}
	if got := o.Visible(false); got != nil {
		t.Errorf("Visible(false) = %+v", got)
	}
	if got := o.Visible(true); len(got) != 1 || got[0].Side != models.SideFront {
		t.Errorf("Visible(true) = %+v", got)
	}
	if UserMessage(err) != MsgParseFailed {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestRun_BothAnswersMalformed(t *testing.T) {
	f := newFixture()
	f.gen.answers[models.SideFront] = "Name: Jane Doe"
	f.gen.answers[models.SideBack] = "Occupation is Engineer"
	p := f.pipeline(t)

	o, err := p.Run(context.Background(), cardInput())
	if ReasonOf(err) != ReasonMalformedExtraction {
		t.Fatalf("reason = %s (%v)", ReasonOf(err), err)
	}
	failures := o.SideFailures()
	if len(failures) != 2 {
		t.Fatalf("SideFailures = %+v, want both sides", failures)
	}
	for i, side := range []models.Side{models.SideFront, models.SideBack} {
		if failures[i].Side != side || failures[i].Reason != ReasonMalformedExtraction || failures[i].Message != MsgParseFailed {
			t.Errorf("failures[%d] = %+v", i, failures[i])
		}
	}
}

func TestRun_OCRFailureCancelsOtherSide(t *testing.T) {
	f := newFixture()
	f.ocr.err[models.SideFront] = fmt.Errorf("%w: blurry", models.ErrOCRFailure)
	f.ocr.block = models.SideBack
	p := f.pipeline(t)

	o, err := p.Run(context.Background(), cardInput())
	if ReasonOf(err) != ReasonOCR {
		t.Fatalf("reason = %s (%v)", ReasonOf(err), err)
	}
	if o.FailedSide != models.SideFront {
		t.Errorf("failed side = %s", o.FailedSide)
	}
	if o.Back.Reason != ReasonCanceled {
		t.Errorf("back reason = %s, want canceled", o.Back.Reason)
	}
	if errs := o.SideErrors(); len(errs) != 1 || errs[0].Side != models.SideFront {
		t.Errorf("SideErrors = %v", errs)
	}
	if !strings.HasPrefix(UserMessage(err), "Error during processing: ") {
		t.Errorf("message = %q", UserMessage(err))
	}
}

func TestRun_SequentialSkipsBack(t *testing.T) {
	f := newFixture()
	f.ocr.err[models.SideFront] = fmt.Errorf("%w: blank", models.ErrOCRFailure)
	p := f.pipeline(t, WithConcurrency(false))

	o, err := p.Run(context.Background(), cardInput())
	if ReasonOf(err) != ReasonOCR {
		t.Fatalf("reason = %s", ReasonOf(err))
	}
	if f.ocr.calls != 1 {
		t.Errorf("recognizer calls = %d, want 1", f.ocr.calls)
	}
	if indexOf(o.Transitions, models.SideBack, StateRecognizingBackText) >= 0 {
		t.Error("back side should not start")
	}
	if o.Back.Reason != ReasonCanceled {
		t.Errorf("back reason = %s", o.Back.Reason)
	}
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture()
	f.ocr.block = models.SideFront
	p := f.pipeline(t, WithConcurrency(false))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o, err := p.Run(ctx, cardInput())
	if err == nil {
		t.Fatal("expected error")
	}
	if ReasonOf(err) != ReasonServiceUnavailable {
		t.Errorf("reason = %s, want service_unavailable on deadline", ReasonOf(err))
	}
	if o.State != StateFailed {
		t.Errorf("state = %s", o.State)
	}
}

func TestRun_GeneratedRunID(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)
	in := cardInput()
	in.RunID = ""
	o, err := p.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.RunID == "" {
		t.Fatal("run ID not generated")
	}
	for _, key := range f.store.puts {
		if !strings.Contains(key, o.RunID) {
			t.Errorf("key %q does not contain run ID", key)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error for missing deps")
	}
	f := newFixture()
	embedder := embedding.NewHashingEmbedder(16)
	parser, _ := extract.NewParser(nil)
	deps := Deps{
		Store:      f.store,
		Recognizer: f.ocr,
		Indexer:    indexer.NewIndexer(embedder),
		Retriever:  search.NewRetriever(embedder),
		Answerer:   answer.NewAnswerer(f.gen),
		Parser:     parser,
	}
	swapped := WithQueries(models.DefaultBackQuery(), models.DefaultFrontQuery())
	if _, err := New(deps, swapped); err == nil {
		t.Error("expected error for queries on the wrong side")
	}
}
