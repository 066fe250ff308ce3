// Package s3store implements the remote object-store contract over an
// S3-compatible bucket, as an alternative to the Google Drive backend.
// "Folders" are key prefixes, so ensure-folder-path needs no remote calls
// and deletes are idempotent by S3 semantics.
package s3store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/balancewise/photosync/internal/drive"
)

const photoContentType = "image/jpeg"

// Options configures the S3 backend.
type Options struct {
	Endpoint        string // custom endpoint for S3-compatible providers; "" for AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// api is the subset of the S3 client the store uses; narrowed for testing.
type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store satisfies the sync pipeline's remote contract against a bucket.
type Store struct {
	client api
	bucket string
	logger *slog.Logger
}

// New builds an S3-backed remote store with static credentials.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// EnsureFolderPath derives the key prefix Diet/<YYYY-MM> for a timestamp.
// Buckets have no folders, so there is nothing to create or cache.
func (s *Store) EnsureFolderPath(_ context.Context, ts time.Time) (string, error) {
	return "Diet/" + ts.UTC().Format("2006-01"), nil
}

// UploadFile puts the photo at <folderID>/<filename>. The returned file id is
// the object key.
func (s *Store) UploadFile(ctx context.Context, localURI, filename, folderID string) drive.UploadResult {
	f, err := os.Open(strings.TrimPrefix(localURI, "file://"))
	if err != nil {
		return drive.UploadResult{Err: fmt.Errorf("s3store: reading %s: %w", localURI, err)}
	}
	defer f.Close()

	key := folderID + "/" + filename

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(photoContentType),
	})
	if err != nil {
		return drive.UploadResult{Err: fmt.Errorf("s3store: put %s: %w", key, err)}
	}

	s.logger.Info("uploaded photo to bucket",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
	)

	return drive.UploadResult{Success: true, FileID: key}
}

// UpdateFile deletes the old object and uploads the replacement. A failed
// delete is logged and the upload proceeds; the old object is already
// orphaned from the entry's view.
func (s *Store) UpdateFile(ctx context.Context, oldFileID, localURI, filename, folderID string) drive.UploadResult {
	if err := s.DeleteFile(ctx, oldFileID); err != nil {
		s.logger.Warn("deleting old object failed, uploading replacement anyway",
			slog.String("key", oldFileID),
			slog.String("error", err.Error()),
		)
	}

	return s.UploadFile(ctx, localURI, filename, folderID)
}

// DeleteFile removes an object. S3 DeleteObject succeeds for absent keys, so
// the delete is idempotent without special-casing.
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return fmt.Errorf("s3store: delete %s: %w", fileID, err)
	}

	return nil
}
