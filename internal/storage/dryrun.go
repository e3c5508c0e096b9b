package storage

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DryRunStore lists from the wrapped store but only logs copies and deletes.
// Objects it pretended to delete are hidden from later listings, so a prefix
// drains the same way it would for real. Use one store per run.
type DryRunStore struct {
	next ObjectStorage
	log  zerolog.Logger

	mu     sync.Mutex
	hidden map[string]struct{}
}

// NewDryRunStore wraps next.
func NewDryRunStore(next ObjectStorage, log zerolog.Logger) *DryRunStore {
	return &DryRunStore{
		next:   next,
		log:    log.With().Bool("dry_run", true).Logger(),
		hidden: make(map[string]struct{}),
	}
}

func (d *DryRunStore) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]ObjectInfo, error) {
	d.mu.Lock()
	hidden := len(d.hidden)
	d.mu.Unlock()

	limit := maxKeys
	if limit > 0 {
		limit += hidden
	}
	objects, err := d.next.ListObjects(ctx, bucket, prefix, limit)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	visible := objects[:0]
	for _, obj := range objects {
		if _, ok := d.hidden[NewLocator(bucket, obj.Key).String()]; ok {
			continue
		}
		visible = append(visible, obj)
	}
	if maxKeys > 0 && len(visible) > maxKeys {
		visible = visible[:maxKeys]
	}
	return visible, nil
}

func (d *DryRunStore) CopyObject(_ context.Context, dst, src Locator) error {
	d.log.Info().Str("src", src.URI()).Str("dst", dst.URI()).Msg("would copy")
	return nil
}

func (d *DryRunStore) DeleteObject(_ context.Context, obj Locator) error {
	d.log.Info().Str("obj", obj.URI()).Msg("would delete")
	d.mu.Lock()
	d.hidden[obj.String()] = struct{}{}
	d.mu.Unlock()
	return nil
}

var _ ObjectStorage = (*DryRunStore)(nil)
