package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Scheme is stripped from locator URIs before they are split into bucket and key.
const Scheme = "s3://"

// ErrMalformedLocator is returned when a URI has no key component.
var ErrMalformedLocator = errors.New("malformed object locator")

// Locator identifies one stored object (or a key prefix) inside a bucket.
type Locator struct {
	Bucket string
	Key    string
}

// ParseLocator splits "s3://bucket/key" (scheme optional) on the first
// separator after the bucket name.
func ParseLocator(uri string) (Locator, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(uri), Scheme)
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" {
		return Locator{}, fmt.Errorf("%w: %q", ErrMalformedLocator, uri)
	}
	return Locator{Bucket: bucket, Key: key}, nil
}

// NewLocator composes a locator from its parts.
func NewLocator(bucket, key string) Locator {
	return Locator{Bucket: bucket, Key: strings.TrimPrefix(key, Scheme)}
}

// String returns "bucket/key", the form object stores accept as a copy source.
func (l Locator) String() string {
	return l.Bucket + "/" + l.Key
}

// URI returns the locator with the scheme prefix.
func (l Locator) URI() string {
	return Scheme + l.String()
}

// Base returns the last element of the key.
func (l Locator) Base() string {
	return path.Base(l.Key)
}

// IsDirMarker reports whether the key is a pseudo-directory marker.
func (l Locator) IsDirMarker() bool {
	return strings.HasSuffix(l.Key, "/")
}

// Destination places the object's basename under destinationPrefix.
func (l Locator) Destination(destinationPrefix string) (Locator, error) {
	dst, err := ParseLocator(destinationPrefix)
	if err != nil {
		return Locator{}, err
	}
	dst.Key = path.Join(dst.Key, l.Base())
	return dst, nil
}
