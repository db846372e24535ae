package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Driver fetches s3://bucket/key links from any S3-compatible store.
type S3Driver struct {
	client *minio.Client
}

func (d *S3Driver) Configure(cfg Config) error {
	if cfg.S3.Endpoint == "" {
		// Left unconfigured; Download reports it per call.
		return nil
	}
	cl, err := minio.New(cfg.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		Secure: cfg.S3.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	d.client = cl
	return nil
}

func (d *S3Driver) Download(ctx context.Context, ref Ref, dst string) error {
	if d.client == nil {
		return errors.New("s3: no endpoint configured")
	}
	if err := d.client.FGetObject(ctx, ref.Bucket, ref.Key, dst, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("s3: get %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	return nil
}
