package segregation

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T, pattern, format string) (*Extractor, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	e, err := NewExtractor(pattern, format, zerolog.New(&buf))
	require.NoError(t, err)
	return e, &buf
}

func TestExtract_Success(t *testing.T) {
	e, logs := newTestExtractor(t, `CHARGINGCDR_.*-(\d{8})-.*.ber`, "%Y%m%d")

	got := e.Extract("CHARGINGCDR_4008-BROCC3-20240901-234125-56908.ber")

	require.True(t, got.Dated)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.Local), got.Time)
	assert.NotContains(t, logs.String(), "no match found")
	assert.NotContains(t, logs.String(), "fail to convert date")
}

func TestExtract_MultiGroup(t *testing.T) {
	e, logs := newTestExtractor(t, `^CHARGINGCDR_.*-(\d{8})-?(\d{2}).*`, "%Y%m%d%H")

	got := e.Extract("CHARGINGCDR_4008-BRCCNH-CCNCDR44-01-Blk0Blk-8421-20221231-100511-78.ccn")

	require.True(t, got.Dated)
	assert.Equal(t, time.Date(2022, 12, 31, 10, 0, 0, 0, time.Local), got.Time)
	assert.Empty(t, logs.String())
}

func TestExtract_NoMatch(t *testing.T) {
	e, logs := newTestExtractor(t, `(\d{4})-(\d{2})-(\d{2})`, "%Y%m%d")

	got := e.Extract("report_wrong_format.txt")

	assert.Equal(t, Unclassified, got)
	assert.Contains(t, logs.String(), "no match found")
	assert.Contains(t, logs.String(), "report_wrong_format.txt")
}

func TestExtract_InvalidDate(t *testing.T) {
	tests := []struct {
		name     string
		filename string
	}{
		{"month out of range", "report_2022-30-12.txt"},
		{"all zero", "report_0000-00-00.txt"},
		{"day out of range for month", "report_2023-02-30.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, logs := newTestExtractor(t, `(\d{4})-(\d{2})-(\d{2})`, "%Y%m%d")

			got := e.Extract(tt.filename)

			assert.Equal(t, Unclassified, got)
			assert.Contains(t, logs.String(), "fail to convert date")
			assert.Contains(t, logs.String(), tt.filename)
			assert.Contains(t, logs.String(), "%Y%m%d")
		})
	}
}

func TestExtract_UnpaddedFieldsRejected(t *testing.T) {
	e, logs := newTestExtractor(t, `(\d{4})-(\d{1,2})-(\d{2})`, "%Y%m%d")

	got := e.Extract("report_2024-9-01.txt")

	assert.Equal(t, Unclassified, got)
	assert.Contains(t, logs.String(), "fail to convert date")
}

func TestExtract_NoCaptureGroups(t *testing.T) {
	e, logs := newTestExtractor(t, `\d{8}`, "%Y%m%d")

	got := e.Extract("CDR-20240901.ber")

	assert.Equal(t, Unclassified, got)
	assert.Contains(t, logs.String(), "fail to convert date")
}

func TestExtract_SearchNotFullMatch(t *testing.T) {
	e, _ := newTestExtractor(t, `(\d{8})`, "%Y%m%d")

	got := e.Extract("prefix-20240102-suffix.dat")

	require.True(t, got.Dated)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local), got.Time)
}

func TestNewExtractor_BadPattern(t *testing.T) {
	_, err := NewExtractor(`(\d{8}`, "%Y%m%d", zerolog.Nop())
	assert.Error(t, err)
}
