package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/metrics"
)

// MinioClient implements ObjectStorage for MinIO and other S3-compatible services.
type MinioClient struct {
	api *minio.Client
}

// NewMinioClient builds a MinioClient. Endpoints may carry an http(s) scheme,
// which then overrides UseSSL.
func NewMinioClient(cfg Config) (*MinioClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint must be provided")
	}

	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	api, err := minio.New(endpoint, &minio.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	return &MinioClient{api: api}, nil
}

// ListObjects lists up to maxKeys objects for a given prefix. The underlying
// listing is cancelled once enough keys have been read.
func (c *MinioClient) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]ObjectInfo, error) {
	start := time.Now()

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ObjectInfo, 0, maxKeys)
	for obj := range c.api.ListObjects(listCtx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   maxKeys,
	}) {
		if obj.Err != nil {
			metrics.RecordStorageOperation("list", time.Since(start), false)
			return nil, fmt.Errorf("minio list %s/%s failed: %w", bucket, prefix, obj.Err)
		}
		results = append(results, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
		if maxKeys > 0 && len(results) >= maxKeys {
			break
		}
	}

	metrics.RecordStorageOperation("list", time.Since(start), true)
	return results, nil
}

// CopyObject performs a server-side copy.
func (c *MinioClient) CopyObject(ctx context.Context, dst, src Locator) error {
	start := time.Now()
	_, err := c.api.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dst.Bucket, Object: dst.Key},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Key},
	)
	if err != nil {
		metrics.RecordStorageOperation("copy", time.Since(start), false)
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	metrics.RecordStorageOperation("copy", time.Since(start), true)
	return nil
}

// DeleteObject removes an object.
func (c *MinioClient) DeleteObject(ctx context.Context, obj Locator) error {
	start := time.Now()
	if err := c.api.RemoveObject(ctx, obj.Bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
		metrics.RecordStorageOperation("delete", time.Since(start), false)
		return fmt.Errorf("delete %s: %w", obj, err)
	}
	metrics.RecordStorageOperation("delete", time.Since(start), true)
	return nil
}

var _ ObjectStorage = (*MinioClient)(nil)
