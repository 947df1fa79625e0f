// Package timeutil normalizes device-reported timestamps. All storage and
// transport use UTC; mesh nodes report sender timestamps as epoch seconds,
// epoch milliseconds, or ISO strings depending on firmware, and every shape
// must land as the same UTC instant.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// ParseSenderTimestamp interprets a sender_timestamp field from a device
// payload. Accepted shapes: float64/int epoch seconds (JSON numbers decode as
// float64), numeric strings, RFC3339 strings. Values that look like epoch
// milliseconds (> year 2603 as seconds) are scaled down. Returns nil when the
// value is absent or unparseable; a bad timestamp never fails ingestion.
func ParseSenderTimestamp(v any) *time.Time {
	switch ts := v.(type) {
	case nil:
		return nil
	case float64:
		return fromEpoch(ts)
	case int64:
		return fromEpoch(float64(ts))
	case int:
		return fromEpoch(float64(ts))
	case string:
		s := strings.TrimSpace(ts)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(n)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				u := t.UTC()
				return &u
			}
		}
		return nil
	default:
		return nil
	}
}

// fromEpoch treats values past the plausible seconds range as milliseconds.
func fromEpoch(n float64) *time.Time {
	if n <= 0 {
		return nil
	}
	const msCutoff = 20_000_000_000 // ~year 2603 in seconds
	if n > msCutoff {
		n = n / 1000
	}
	sec := int64(n)
	nsec := int64((n - float64(sec)) * float64(time.Second))
	t := time.Unix(sec, nsec).UTC()
	return &t
}

// FormatMetadataTime formats a UTC time for JSON payloads using RFC3339.
func FormatMetadataTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseMetadataTime parses a timestamp produced by FormatMetadataTime.
func ParseMetadataTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format %q: %w", s, err)
	}
	return t.UTC(), nil
}
