// Package dateutil normalizes the date representations that come back from
// the storage backends and the scraped feeds. Sqlite hands dates back as
// text while Postgres returns native timestamps, so everything funnels
// through Parse/ParseAny before the rest of the system sees it.
package dateutil

import (
	"strings"
	"time"
)

// StorageLayout is the canonical on-disk representation. Microsecond
// precision keeps round-trips well inside one second.
const StorageLayout = "2006-01-02T15:04:05.999999"

// layouts are attempted in order; the first successful parse wins.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
}

// Parse attempts to interpret a date string. It never panics or errors:
// the second return value reports whether a parse succeeded. Offsets and
// Z suffixes are accepted; the result always drops the zone and keeps the
// wall-clock reading so both backends compare consistently.
func Parse(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return stripZone(t), true
		}
	}
	return time.Time{}, false
}

// ParseAny handles the values a database scan can produce: native times,
// strings, and byte slices. Anything else fails.
func ParseAny(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return stripZone(v), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return stripZone(*v), true
	case string:
		return Parse(v)
	case []byte:
		return Parse(string(v))
	default:
		return time.Time{}, false
	}
}

// ParseOr parses value and substitutes fallback when parsing fails.
func ParseOr(value string, fallback time.Time) time.Time {
	if t, ok := Parse(value); ok {
		return t
	}
	return fallback
}

// FormatForStorage renders a timestamp in the canonical storage layout.
func FormatForStorage(t time.Time) string {
	return stripZone(t).Format(StorageLayout)
}

// stripZone keeps the wall-clock fields and discards the zone, matching
// how dates are compared throughout the pipeline.
func stripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
