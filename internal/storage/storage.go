package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage captures the minimal S3-compatible operations segregation needs.
// Implementations must be safe for concurrent use.
type ObjectStorage interface {
	// ListObjects returns at most maxKeys entries under prefix, in key order.
	ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]ObjectInfo, error)
	// CopyObject copies src to dst server-side.
	CopyObject(ctx context.Context, dst, src Locator) error
	// DeleteObject removes obj.
	DeleteObject(ctx context.Context, obj Locator) error
}

const (
	DriverMinio  = "minio"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// Config encapsulates the connection info for the object store.
type Config struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	PathStyle bool
}

// New builds the ObjectStorage selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMinio:
		return NewMinioClient(cfg)
	case DriverS3, "":
		return NewS3Client(ctx, cfg)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
