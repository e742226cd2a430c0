package publish

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"data-manager/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Publisher uploads output files to a bucket.
type Publisher struct {
	client storage.Client
	bucket string
	log    *zap.Logger
}

// New creates a publisher for one bucket.
func New(client storage.Client, bucket string, log *zap.Logger) *Publisher {
	return &Publisher{client: client, bucket: bucket, log: log}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (p *Publisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", p.bucket, err)
	}
	return nil
}

// PublishDir walks root and uploads every regular file, keyed by its path
// relative to root. Upload failures are logged per file; the first error
// is returned after the walk completes.
func (p *Publisher) PublishDir(ctx context.Context, root string) (int, error) {
	var uploaded int
	var firstErr error

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := p.PublishFile(ctx, path, filepath.ToSlash(rel)); err != nil {
			p.log.Error("failed to publish file", zap.String("file", path), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		uploaded++
		return nil
	})
	if err != nil && firstErr == nil {
		firstErr = err
	}

	return uploaded, firstErr
}

// PublishFile uploads one file under the given object key.
func (p *Publisher) PublishFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := "text/plain; charset=utf-8"
	if filepath.Ext(path) == ".gz" {
		contentType = "application/gzip"
	}

	_, err = p.client.PutObject(ctx, p.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
