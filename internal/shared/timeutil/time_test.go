package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSenderTimestamp(t *testing.T) {
	epoch := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  *time.Time
	}{
		{"epoch seconds float", float64(epoch.Unix()), &epoch},
		{"epoch seconds int", epoch.Unix(), &epoch},
		{"epoch milliseconds", float64(epoch.UnixMilli()), &epoch},
		{"numeric string", "1748781000", &epoch},
		{"rfc3339 string", "2025-06-01T12:30:00Z", &epoch},
		{"rfc3339 with offset", "2025-06-01T14:30:00+02:00", &epoch},
		{"space-separated", "2025-06-01 12:30:00", &epoch},
		{"nil", nil, nil},
		{"empty string", "", nil},
		{"garbage", "not-a-time", nil},
		{"zero epoch", float64(0), nil},
		{"negative", float64(-10), nil},
		{"bool", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSenderTimestamp(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.WithinDuration(t, *tt.want, *got, time.Second)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestMetadataTime_RoundTrip(t *testing.T) {
	now := NowUTC().Truncate(time.Second)
	s := FormatMetadataTime(now)

	parsed, err := ParseMetadataTime(s)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))

	_, err = ParseMetadataTime("yesterday")
	assert.Error(t, err)
}
