package external

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"placement/internal/config"
	"placement/internal/types"
)

// S3PutClient abstracts the S3 PutObject operation for testability.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes archive blobs to a bucket.
type S3Archiver struct {
	client S3PutClient
	bucket string
	logger *slog.Logger
}

// NewS3Archiver creates an S3Archiver.
func NewS3Archiver(client S3PutClient, bucket string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archiver{client: client, bucket: bucket, logger: logger}
}

// Put implements Archiver.
func (a *S3Archiver) Put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStorage,
			fmt.Sprintf("failed to put s3://%s/%s", a.bucket, key),
			err,
		)
	}
	a.logger.InfoContext(ctx, "archive written", "bucket", a.bucket, "key", key, "bytes", len(body))
	return nil
}

// FileArchiver writes archive blobs under a local directory. Keys map to
// relative paths; parent directories are created as needed.
type FileArchiver struct {
	dir    string
	logger *slog.Logger
}

// NewFileArchiver creates a FileArchiver rooted at dir.
func NewFileArchiver(dir string, logger *slog.Logger) *FileArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileArchiver{dir: dir, logger: logger}
}

// Put implements Archiver. The write goes through a temp file and a rename so
// a partial blob never appears under key.
func (a *FileArchiver) Put(ctx context.Context, key string, body []byte) error {
	path := filepath.Join(a.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStorage, "failed to create archive directory", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStorage, "failed to write archive file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return types.NewAppError(types.ErrCodeUpstreamStorage, "failed to finalize archive file", err)
	}
	a.logger.InfoContext(ctx, "archive written", "path", path, "bytes", len(body))
	return nil
}

// NewArchiver picks the configured archive backend. The bucket wins when both
// are set. It returns nil when archival is disabled.
func NewArchiver(cfg config.ArchiveConfig, awsCfg aws.Config, logger *slog.Logger) Archiver {
	switch {
	case cfg.Bucket != "":
		return NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.Bucket, logger)
	case cfg.Dir != "":
		return NewFileArchiver(cfg.Dir, logger)
	default:
		return nil
	}
}

var (
	_ Archiver = (*S3Archiver)(nil)
	_ Archiver = (*FileArchiver)(nil)
)
