package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/metrics"
)

// S3Client implements ObjectStorage on the AWS SDK.
type S3Client struct {
	client *s3.Client
}

// NewS3Client loads the default AWS configuration chain. Static keys, a custom
// endpoint and path-style addressing are applied when configured.
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region := strings.TrimSpace(cfg.Region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Client{client: client}, nil
}

// ListObjects issues a single ListObjectsV2 call bounded by maxKeys.
func (c *S3Client) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]ObjectInfo, error) {
	start := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(maxKeys))
	}

	out, err := c.client.ListObjectsV2(ctx, input)
	if err != nil {
		metrics.RecordStorageOperation("list", time.Since(start), false)
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}
	metrics.RecordStorageOperation("list", time.Since(start), true)

	results := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		results = append(results, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return results, nil
}

// CopyObject copies src to dst server-side.
func (c *S3Client) CopyObject(ctx context.Context, dst, src Locator) error {
	start := time.Now()

	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(url.PathEscape(src.String())),
	})
	if err != nil {
		metrics.RecordStorageOperation("copy", time.Since(start), false)
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}

	metrics.RecordStorageOperation("copy", time.Since(start), true)
	return nil
}

// DeleteObject removes an object from S3.
func (c *S3Client) DeleteObject(ctx context.Context, obj Locator) error {
	start := time.Now()

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		metrics.RecordStorageOperation("delete", time.Since(start), false)
		return fmt.Errorf("delete %s: %w", obj, err)
	}

	metrics.RecordStorageOperation("delete", time.Since(start), true)
	return nil
}

var _ ObjectStorage = (*S3Client)(nil)
