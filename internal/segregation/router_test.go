package segregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRouter_Route(t *testing.T) {
	r := NewRouter("s3://archive/cdr/%Y/%m/%d/", "s3://archive/cdr/error_%Y/")

	ts := time.Date(2024, 9, 1, 23, 41, 25, 0, time.UTC)
	assert.Equal(t, "s3://archive/cdr/2024/09/01/", r.Route(Dated(ts)))
	assert.Equal(t, "s3://archive/cdr/2024/09/01/", r.Route(Dated(ts)), "routing is deterministic")

	// the error prefix is never date formatted
	assert.Equal(t, "s3://archive/cdr/error_%Y/", r.Route(Unclassified))
}

func TestRouter_HourlyTemplate(t *testing.T) {
	r := NewRouter("s3://archive/%Y%m%d/%H/", "s3://archive/error/")

	got := r.Route(Dated(time.Date(2022, 12, 31, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "s3://archive/20221231/10/", got)
}
