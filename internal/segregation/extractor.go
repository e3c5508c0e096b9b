package segregation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
	"github.com/rs/zerolog"
)

// Extractor derives a timestamp from a filename. The capture groups of the
// pattern are concatenated in order and parsed with a strftime format, so the
// group layout and the format form a single contract.
type Extractor struct {
	pattern *regexp.Regexp
	format  string
	loc     *time.Location
	log     zerolog.Logger
}

// NewExtractor compiles pattern. Parsed timestamps are placed in time.Local.
func NewExtractor(pattern, format string, log zerolog.Logger) (*Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile match pattern %q: %w", pattern, err)
	}
	return &Extractor{
		pattern: re,
		format:  format,
		loc:     time.Local,
		log:     log,
	}, nil
}

// Extract searches filename for the pattern. Names that do not match, patterns
// without capture groups, and strings that do not parse are all Unclassified;
// each case leaves a diagnostic record.
func (e *Extractor) Extract(filename string) Classification {
	groups := e.pattern.FindStringSubmatch(filename)
	if groups == nil {
		e.log.Warn().
			Str("filename", filename).
			Str("regex", e.pattern.String()).
			Msg("no match found")
		return Unclassified
	}

	if len(groups) == 1 {
		e.log.Error().
			Str("filename", filename).
			Str("regex", e.pattern.String()).
			Msg("fail to convert date: pattern has no capture groups")
		return Unclassified
	}

	dateStr := strings.Join(groups[1:], "")
	ts, err := timefmt.ParseInLocation(dateStr, e.format, e.loc)
	if err == nil && !strings.EqualFold(timefmt.Format(ts, e.format), dateStr) {
		// out-of-range fields are normalised by time.Date; reject them
		err = fmt.Errorf("date %q out of range for %q", dateStr, e.format)
	}
	if err != nil {
		e.log.Error().
			Err(err).
			Str("filename", filename).
			Str("regex", e.pattern.String()).
			Str("matched_date_str", dateStr).
			Str("datetime_format", e.format).
			Msg("fail to convert date")
		return Unclassified
	}

	return Dated(ts)
}
