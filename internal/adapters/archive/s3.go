// Package archive stores performance snapshots in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
)

// ErrArchive is returned when a snapshot could not be stored.
var ErrArchive = errors.New("archive snapshot")

// Archiver stores snapshots.
type Archiver interface {
	Archive(ctx context.Context, snap model.PerformanceSnapshot) (string, error)
}

// Uploader is the subset of manager.Uploader the archiver needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 writes snapshots as JSON objects at
//
//	<prefix>/snapshots/YYYY/MM/DD/<worker>/<snapshot-id>.json
type S3 struct {
	bucket   string
	prefix   string
	uploader Uploader
	logger   logger.Logger
}

// Option applies a configuration option to the S3 archiver.
type Option func(*S3)

// WithUploader replaces the uploader built from the default AWS config.
func WithUploader(u Uploader) Option {
	return func(s *S3) {
		if u != nil {
			s.uploader = u
		}
	}
}

// WithLogger sets the archiver logger.
func WithLogger(l logger.Logger) Option {
	return func(s *S3) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewS3 creates an archiver for bucket. Region and credentials come from the
// standard AWS environment unless an uploader is supplied.
func NewS3(ctx context.Context, bucket, prefix string, opts ...Option) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket required", ErrArchive)
	}
	s := &S3{bucket: bucket, prefix: prefix, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.uploader == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: load aws config: %w", ErrArchive, err)
		}
		s.uploader = manager.NewUploader(s3.NewFromConfig(cfg))
	}
	return s, nil
}

// Key returns the object key for snap.
func (s *S3) Key(snap model.PerformanceSnapshot) string {
	year, month, day := snap.CreatedAt.UTC().Date()
	return path.Join(s.prefix, "snapshots",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		snap.WorkerID,
		snap.ID+".json",
	)
}

// Archive uploads snap and returns its object key.
func (s *S3) Archive(ctx context.Context, snap model.PerformanceSnapshot) (string, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("%w: marshal %s: %w", ErrArchive, snap.ID, err)
	}
	key := s.Key(snap)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %w", ErrArchive, key, err)
	}
	s.logger.Debug(ctx, "snapshot archived",
		logger.String("worker", snap.WorkerID),
		logger.String("snapshot", snap.ID),
		logger.String("key", key),
	)
	return key, nil
}

// Nop drops snapshots. It is used when no bucket is configured.
type Nop struct{}

// Archive implements Archiver.
func (Nop) Archive(context.Context, model.PerformanceSnapshot) (string, error) { return "", nil }
