package store

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goccy/go-json"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/storage"
)

// S3Config configures the S3 result backend.
type S3Config struct {
	storage.S3Options `yaml:",inline"`

	// Key is the object holding the JSON array document
	Key string `yaml:"key"`
}

// S3Store keeps the JSON array document as a single object. PutObject replaces the object
// atomically, so readers see either the old or the new array.
type S3Store struct {
	cfg    S3Config
	client storage.S3API
}

// NewS3Store creates an S3 store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	client, err := storage.NewS3Client(ctx, cfg.S3Options)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "create s3 client")
	}
	return newS3Store(client, cfg), nil
}

func newS3Store(client storage.S3API, cfg S3Config) *S3Store {
	if cfg.Key == "" {
		cfg.Key = "output/" + DefaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &S3Store{cfg: cfg, client: client}
}

func (s *S3Store) load(ctx context.Context) ([]json.RawMessage, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.CodeWriteFailed, "get %s", s.Name())
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeWriteFailed, "read %s", s.Name())
	}
	return decodeArray(data)
}

// Append implements Store.
func (s *S3Store) Append(ctx context.Context, records []model.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	existing, err := s.load(ctx)
	if err != nil {
		return err
	}
	added, err := marshalRecords(records)
	if err != nil {
		return err
	}
	doc, err := encodeArray(append(existing, added...))
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.cfg.Key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrapf(err, errors.CodeWriteFailed, "put %s", s.Name())
	}
	return nil
}

// Count implements Store.
func (s *S3Store) Count(ctx context.Context) (int, error) {
	items, err := s.load(ctx)
	return len(items), err
}

// Records implements Store.
func (s *S3Store) Records(ctx context.Context) ([]model.OutputRecord, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return decodeRecords(items)
}

// Name implements Store.
func (s *S3Store) Name() string {
	return "s3://" + s.cfg.Bucket + "/" + s.cfg.Key
}
