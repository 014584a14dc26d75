package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudvault/backend/internal/config"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveClient ships audit log exports to an S3-compatible bucket.
// User file bytes never go through here; they live on local disk.
type ArchiveClient struct {
	client *minio.Client
	bucket string
}

func NewArchiveClient(cfg config.ArchiveConfig) (*ArchiveClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &ArchiveClient{client: client, bucket: cfg.Bucket}, nil
}

func (a *ArchiveClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("archive_upload_failed", err, map[string]interface{}{
			"object_name": objectName,
			"size":        size,
			"bucket":      a.bucket,
		})
	} else {
		logger.Info("archive_upload_success", map[string]interface{}{
			"object_name": objectName,
			"size":        size,
			"bucket":      a.bucket,
		})
	}
	return err
}

func (a *ArchiveClient) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", a.bucket, err)
	}
	return nil
}
