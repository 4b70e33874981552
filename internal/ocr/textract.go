package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	ttypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/hyperjump/cardex/internal/objectstore"
	"go.uber.org/zap"
)

type textractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractRecognizer runs synchronous text detection. S3 objects are read by
// Textract directly; other locators are sent as bytes fetched from store.
type TextractRecognizer struct {
	api     textractAPI
	store   objectstore.Store
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a recognizer.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	timeout time.Duration
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTimeout bounds one Recognize call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func applyOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTextractRecognizer creates a recognizer from an AWS config.
func NewTextractRecognizer(awsCfg aws.Config, store objectstore.Store, opts ...Option) *TextractRecognizer {
	return newTextractRecognizer(textract.NewFromConfig(awsCfg), store, opts...)
}

func newTextractRecognizer(api textractAPI, store objectstore.Store, opts ...Option) *TextractRecognizer {
	o := applyOptions(opts)
	return &TextractRecognizer{api: api, store: store, timeout: o.timeout, logger: o.logger}
}

// Recognize returns the LINE blocks joined with newlines, in reading order.
func (r *TextractRecognizer) Recognize(ctx context.Context, loc objectstore.Locator) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc := &ttypes.Document{}
	if loc.Scheme == "" || loc.Scheme == "s3" {
		doc.S3Object = &ttypes.S3Object{Bucket: aws.String(loc.Bucket), Name: aws.String(loc.Key)}
	} else {
		b, err := r.store.Get(ctx, loc)
		if err != nil {
			return "", failure(loc, err)
		}
		doc.Bytes = b
	}

	start := time.Now()
	out, err := r.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{Document: doc})
	if err != nil {
		r.logger.Warn("textract failed", zap.String("locator", loc.String()), zap.Error(err))
		return "", failure(loc, err)
	}
	var lines []string
	for _, b := range out.Blocks {
		if b.BlockType == ttypes.BlockTypeLine && b.Text != nil {
			lines = append(lines, aws.ToString(b.Text))
		}
	}
	r.logger.Debug("textract",
		zap.String("locator", loc.String()),
		zap.Int("lines", len(lines)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return nonEmpty(loc, strings.Join(lines, "\n"))
}
