package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"deadsongs/config"
	"deadsongs/logger"
)

// Resolver turns stored object keys into URLs a browser can fetch. Values
// that are already absolute URLs pass through untouched. It never writes.
type Resolver struct {
	client     *minio.Client
	bucket     string
	publicBase string
	presignTTL time.Duration
}

// NewResolver creates the MinIO client. No request is made until a
// presigned URL or a bucket check is needed.
func NewResolver(cfg *config.Config) (*Resolver, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		// A fixed region keeps presigning offline.
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}
	return &Resolver{
		client:     client,
		bucket:     cfg.MinioBucket,
		publicBase: strings.TrimRight(cfg.MinioPublicURL, "/"),
		presignTTL: cfg.MinioPresignTTL,
	}, nil
}

// Bucket returns the configured bucket.
func (r *Resolver) Bucket() string {
	return r.bucket
}

// IsAbsoluteURL reports whether ref already carries a scheme and host.
func IsAbsoluteURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Resolve maps an object key to a URL. With a public base configured the
// URL is built directly, otherwise a presigned GET URL is issued.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" || IsAbsoluteURL(ref) {
		return ref, nil
	}
	key := strings.TrimLeft(ref, "/")

	if r.publicBase != "" {
		return r.publicBase + "/" + r.bucket + "/" + escapeKey(key), nil
	}

	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, r.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", r.bucket, key, err)
	}
	return u.String(), nil
}

// Check verifies that the bucket exists.
func (r *Resolver) Check(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", r.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", r.bucket)
	}
	logger.Info("MinIO bucket reachable", logger.String("bucket", r.bucket))
	return nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
