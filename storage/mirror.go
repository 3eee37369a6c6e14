package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Mirror keeps a best-effort off-site copy of completed artifacts in S3.
// A nil Mirror (no bucket configured) is valid and does nothing; mirror
// failures are logged by callers and never block an upload.
type Mirror struct {
	client *s3.Client
	bucket string
	log    *slog.Logger
}

func NewMirror(client *s3.Client, bucket string, log *slog.Logger) *Mirror {
	if client == nil || bucket == "" {
		return nil
	}
	return &Mirror{client: client, bucket: bucket, log: log}
}

// Put uploads the artifact under its on-disk base name.
func (m *Mirror) Put(ctx context.Context, path string) error {
	if m == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(filepath.Base(path)),
		Body:   f,
	})
	if err == nil {
		m.log.Info("artifact mirrored", "bucket", m.bucket, "key", filepath.Base(path))
	}
	return err
}

// Delete removes the mirrored copy, if any.
func (m *Mirror) Delete(ctx context.Context, path string) error {
	if m == nil {
		return nil
	}
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(filepath.Base(path)),
	})
	return err
}
