package reportstore

import (
	"bytes"
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aaronromeo/mailpulse/internal/config"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const keyPrefix = "reports"

// Object describes a report to upload.
type Object struct {
	Kind        string
	Extension   string
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Store uploads rendered reports to an S3-compatible bucket.
type Store struct {
	bucket   string
	uploader s3manageriface.UploaderAPI
	logger   *slog.Logger
	newID    func() string
}

type Option func(*Store)

func WithUploader(uploader s3manageriface.UploaderAPI) Option {
	return func(s *Store) {
		s.uploader = uploader
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// New returns a Store for bucket. Without WithUploader an uploader is
// built from env.
func New(env config.S3Env, opts ...Option) (*Store, error) {
	store := &Store{
		bucket: strings.TrimSpace(env.Bucket),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(store)
	}

	if store.bucket == "" {
		return nil, errors.New("requires bucket")
	}
	if store.logger == nil {
		store.logger = slog.Default()
	}
	if store.uploader == nil {
		sess, err := session.NewSession(&aws.Config{
			Endpoint:         aws.String(env.Endpoint),
			Region:           aws.String(env.Region),
			Credentials:      credentials.NewStaticCredentials(env.Key, env.Secret, ""),
			S3ForcePathStyle: aws.Bool(true),
		})
		if err != nil {
			return nil, errors.Wrap(err, "create S3 session")
		}
		store.uploader = s3manager.NewUploader(sess)
	}
	return store, nil
}

// Key returns the object key for obj: reports/<kind>/<yyyy-mm-dd>/<id><ext>.
func (s *Store) Key(obj Object) string {
	created := obj.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return path.Join(keyPrefix, obj.Kind, created.UTC().Format("2006-01-02"), s.newID()+obj.Extension)
}

// Upload stores obj and returns its location.
func (s *Store) Upload(ctx context.Context, obj Object) (string, error) {
	key := s.Key(obj)
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(obj.Body),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}

	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrapf(err, "upload %s", key)
	}

	location := out.Location
	if location == "" {
		location = "s3://" + s.bucket + "/" + key
	}
	s.logger.InfoContext(ctx, "Uploaded report",
		slog.String("kind", obj.Kind),
		slog.String("location", location),
		slog.Int("bytes", len(obj.Body)),
	)
	return location, nil
}
