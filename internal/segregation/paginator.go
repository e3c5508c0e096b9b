package segregation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
)

// Paginator yields successive pages of real files under a prefix. Every pull
// restarts the listing from the beginning of the prefix: objects moved by the
// previous page are gone, so no continuation token is kept. A Paginator is
// exhausted after it reports done and cannot be restarted.
type Paginator struct {
	store    storage.ObjectStorage
	prefix   storage.Locator
	pageSize int
	maxPages int
	pulled   int
	done     bool
	log      zerolog.Logger
}

// NewPaginator returns a Paginator over prefix.
func NewPaginator(store storage.ObjectStorage, prefix storage.Locator, pageSize, maxPages int, log zerolog.Logger) *Paginator {
	return &Paginator{
		store:    store,
		prefix:   prefix,
		pageSize: pageSize,
		maxPages: maxPages,
		log:      log,
	}
}

// Next lists the next page. ok is false once the prefix is empty, only
// pseudo-directories remain, or maxPages pages were pulled. Listing failures
// are returned as errors.
func (p *Paginator) Next(ctx context.Context) (page Page, ok bool, err error) {
	if p.done {
		return Page{}, false, nil
	}
	if p.pulled >= p.maxPages {
		p.done = true
		p.log.Info().Int("max_loops", p.maxPages).Msg("page limit reached")
		return Page{}, false, nil
	}

	entries, err := p.store.ListObjects(ctx, p.prefix.Bucket, p.prefix.Key, p.pageSize)
	if err != nil {
		p.done = true
		return Page{}, false, errors.Wrapf(err, "list %s", p.prefix.URI())
	}

	if len(entries) == 0 {
		p.done = true
		p.log.Warn().Str("prefix", p.prefix.URI()).Msg("empty set")
		return Page{}, false, nil
	}

	objects := make([]storage.Locator, 0, len(entries))
	for _, entry := range entries {
		loc := storage.NewLocator(p.prefix.Bucket, entry.Key)
		if loc.IsDirMarker() {
			continue
		}
		objects = append(objects, loc)
	}

	if len(objects) == 0 {
		p.done = true
		p.log.Warn().Str("prefix", p.prefix.URI()).Msg("no files left")
		return Page{}, false, nil
	}

	p.pulled++
	p.log.Info().
		Int("curr_loop", p.pulled).
		Int("max_loops", p.maxPages).
		Int("n_keys", len(entries)).
		Int("n_file", len(objects)).
		Msg("page listed")

	return Page{Number: p.pulled, Listed: len(entries), Objects: objects}, true, nil
}
