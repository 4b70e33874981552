package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hyperjump/cardex/internal/models"
	"go.uber.org/zap"
)

// S3Config holds the S3 connection settings.
type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the S3 endpoint (MinIO, LocalStack). Empty uses AWS.
	Endpoint string
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store stores objects in one S3 bucket.
type S3Store struct {
	api     s3API
	presign func(ctx context.Context, in *s3.GetObjectInput, ttl time.Duration) (string, error)
	bucket  string
	logger  *zap.Logger
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) S3Option {
	return func(s *S3Store) { s.logger = l }
}

// LoadAWSConfig builds an AWS config from static credentials. Textract shares it.
func LoadAWSConfig(ctx context.Context, region, accessKey, secretKey string) (aws.Config, error) {
	if accessKey == "" || secretKey == "" {
		return aws.Config{}, fmt.Errorf("%w: access key and secret key are required", models.ErrNoCredentials)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewS3Store creates a store for cfg.Bucket from an AWS config.
func NewS3Store(awsCfg aws.Config, cfg S3Config, opts ...S3Option) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	presigner := s3.NewPresignClient(client)
	s := newS3Store(client, cfg.Bucket, opts...)
	s.presign = func(ctx context.Context, in *s3.GetObjectInput, ttl time.Duration) (string, error) {
		req, err := presigner.PresignGetObject(ctx, in, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}
	return s
}

func newS3Store(api s3API, bucket string, opts ...S3Option) *S3Store {
	s := &S3Store{api: api, bucket: bucket, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (Locator, error) {
	start := time.Now()
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		err = classifyS3Error(err)
		s.logger.Warn("s3 put failed", zap.String("key", key), zap.Error(err))
		return Locator{}, fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debug("s3 put",
		zap.String("key", key),
		zap.Int("bytes", len(body)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return Locator{Scheme: "s3", Bucket: s.bucket, Key: key}, nil
}

// Get downloads the object.
func (s *S3Store) Get(ctx context.Context, loc Locator) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, classifyS3Error(err))
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrStorage, loc, err)
	}
	return b, nil
}

// Presign returns a GET URL valid for ttl.
func (s *S3Store) Presign(ctx context.Context, loc Locator, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return "", fmt.Errorf("%w: presigning not configured", models.ErrStorage)
	}
	url, err := s.presign(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", loc, classifyS3Error(err))
	}
	return url, nil
}

var credentialErrorCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"AllAccessDisabled":     true,
}

// classifyS3Error wraps err with ErrNoCredentials for auth failures and ErrStorage otherwise.
func classifyS3Error(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && credentialErrorCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %w", models.ErrNoCredentials, err)
	}
	return fmt.Errorf("%w: %w", models.ErrStorage, err)
}
