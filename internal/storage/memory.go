package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/metrics"
)

// MemoryStore is an in-process ObjectStorage. Failures can be injected per
// object to exercise error paths.
type MemoryStore struct {
	mu         sync.Mutex
	buckets    map[string]map[string][]byte
	copyErrs   map[string]error
	deleteErrs map[string]error
	listErr    error
	listCalls  int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:    make(map[string]map[string][]byte),
		copyErrs:   make(map[string]error),
		deleteErrs: make(map[string]error),
	}
}

// Put stores data under obj, creating the bucket when needed.
func (m *MemoryStore) Put(obj Locator, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(obj.Bucket)[obj.Key] = data
}

// Exists reports whether obj is stored.
func (m *MemoryStore) Exists(obj Locator) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buckets[obj.Bucket][obj.Key]
	return ok
}

// Keys returns every key in bucket under prefix, sorted.
func (m *MemoryStore) Keys(bucket, prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys(bucket, prefix)
}

// FailCopy makes every copy whose source is src fail with err.
func (m *MemoryStore) FailCopy(src Locator, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copyErrs[src.String()] = err
}

// FailDelete makes every delete of obj fail with err.
func (m *MemoryStore) FailDelete(obj Locator, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErrs[obj.String()] = err
}

// FailList makes every listing fail with err. A nil err clears it.
func (m *MemoryStore) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// ListCalls returns how many listings were served.
func (m *MemoryStore) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// ListObjects returns up to maxKeys entries under prefix in key order.
func (m *MemoryStore) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]ObjectInfo, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.listErr != nil {
		metrics.RecordStorageOperation("list", time.Since(start), false)
		return nil, m.listErr
	}

	keys := m.keys(bucket, prefix)
	if maxKeys > 0 && len(keys) > maxKeys {
		keys = keys[:maxKeys]
	}

	results := make([]ObjectInfo, 0, len(keys))
	for _, key := range keys {
		results = append(results, ObjectInfo{
			Key:  key,
			Size: int64(len(m.buckets[bucket][key])),
		})
	}
	metrics.RecordStorageOperation("list", time.Since(start), true)
	return results, nil
}

// CopyObject copies src to dst.
func (m *MemoryStore) CopyObject(ctx context.Context, dst, src Locator) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.copyErrs[src.String()]; err != nil {
		metrics.RecordStorageOperation("copy", time.Since(start), false)
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	data, ok := m.buckets[src.Bucket][src.Key]
	if !ok {
		metrics.RecordStorageOperation("copy", time.Since(start), false)
		return fmt.Errorf("copy %s -> %s: no such key", src, dst)
	}
	m.bucket(dst.Bucket)[dst.Key] = data
	metrics.RecordStorageOperation("copy", time.Since(start), true)
	return nil
}

// DeleteObject removes obj. Deleting a missing key succeeds, as on S3.
func (m *MemoryStore) DeleteObject(ctx context.Context, obj Locator) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.deleteErrs[obj.String()]; err != nil {
		metrics.RecordStorageOperation("delete", time.Since(start), false)
		return fmt.Errorf("delete %s: %w", obj, err)
	}
	delete(m.buckets[obj.Bucket], obj.Key)
	metrics.RecordStorageOperation("delete", time.Since(start), true)
	return nil
}

func (m *MemoryStore) bucket(name string) map[string][]byte {
	b, ok := m.buckets[name]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[name] = b
	}
	return b
}

func (m *MemoryStore) keys(bucket, prefix string) []string {
	keys := make([]string, 0)
	for key := range m.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

var _ ObjectStorage = (*MemoryStore)(nil)
