package checkpoint

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/storage"
)

// S3Config configures the S3 cursor backend.
type S3Config struct {
	storage.S3Options `yaml:",inline"`

	// Key is the object key holding the cursor
	Key string `yaml:"key"`
}

// S3Tracker stores the cursor as a small text object.
type S3Tracker struct {
	cfg    S3Config
	client storage.S3API
	logger zerolog.Logger
}

// NewS3Tracker creates an S3 tracker from the default AWS credential chain or static keys.
func NewS3Tracker(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Tracker, error) {
	client, err := storage.NewS3Client(ctx, cfg.S3Options)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointFailed, "create s3 client")
	}
	return newS3Tracker(client, cfg, logger), nil
}

func newS3Tracker(client storage.S3API, cfg S3Config, logger zerolog.Logger) *S3Tracker {
	if cfg.Key == "" {
		cfg.Key = "progress/cursor.txt"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &S3Tracker{cfg: cfg, client: client, logger: logger}
}

// Load implements Tracker.
func (t *S3Tracker) Load(ctx context.Context) int {
	return loadOrZero(ctx, t, t.Name(), t.logger)
}

func (t *S3Tracker) read(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(t.cfg.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return 0, errNoCursor
		}
		return 0, errors.Wrapf(err, errors.CodeCheckpointFailed, "get s3://%s/%s", t.cfg.Bucket, t.cfg.Key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeCheckpointFailed, "read cursor object")
	}
	return parseCursor(string(data))
}

// Save implements Tracker. A PutObject replaces the object atomically.
func (t *S3Tracker) Save(ctx context.Context, cursor int) error {
	s, err := formatCursor(cursor)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.cfg.Bucket),
		Key:         aws.String(t.cfg.Key),
		Body:        strings.NewReader(s),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return errors.Wrapf(err, errors.CodeCheckpointFailed, "put s3://%s/%s", t.cfg.Bucket, t.cfg.Key)
	}
	return nil
}

// Name implements Tracker.
func (t *S3Tracker) Name() string {
	return "s3://" + t.cfg.Bucket + "/" + t.cfg.Key
}
