package cache

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"resultsbakery/internal"
	"resultsbakery/internal/config"
)

// ObjectSource reads raw files from an S3 compatible bucket. Objects are
// keyed by generated filename under an optional prefix.
type ObjectSource struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewObjectSource(cfg config.Config, prefix string) (*ObjectSource, error) {
	if err := cfg.Require("S3_ENDPOINT", cfg.S3Endpoint); err != nil {
		return nil, err
	}
	if err := cfg.Require("S3_BUCKET", cfg.S3Bucket); err != nil {
		return nil, err
	}
	if err := cfg.Require("S3_ACCESS_KEY", cfg.S3AccessKey); err != nil {
		return nil, err
	}
	if err := cfg.Require("S3_SECRET_KEY", cfg.S3SecretKey); err != nil {
		return nil, err
	}

	client, err := minio.New(strings.TrimSpace(cfg.S3Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &ObjectSource{client: client, bucket: cfg.S3Bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *ObjectSource) key(m internal.Mapping) string {
	if s.prefix == "" {
		return m.GeneratedFilename
	}
	return path.Join(s.prefix, m.GeneratedFilename)
}

func (s *ObjectSource) Open(ctx context.Context, m internal.Mapping) (io.ReadCloser, error) {
	if strings.TrimSpace(m.GeneratedFilename) == "" {
		return nil, fmt.Errorf("%w: mapping has no generated filename", internal.ErrSourceUnavailable)
	}
	key := s.key(m)
	// GetObject is lazy; stat first so a missing key surfaces here.
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		return nil, fmt.Errorf("%w: s3://%s/%s: %s", internal.ErrSourceUnavailable, s.bucket, key, firstNonEmpty(resp.Code, err.Error()))
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: s3://%s/%s: %v", internal.ErrSourceUnavailable, s.bucket, key, err)
	}
	return obj, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
