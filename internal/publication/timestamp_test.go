package publication

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2024-01-01T00:01:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), got)

	for _, bad := range []string{"", "not-a-date", "2024-01-01", "2024-01-01T00:01:00Z", "2024-01-01T00:01:00.000+01:00"} {
		t.Run(bad, func(t *testing.T) {
			_, err := ParseTimestamp(bad)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDateParse))
			var de *DateParseError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, bad, de.Value)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 4, 5, 123456789, time.FixedZone("X", 2*3600))
	assert.Equal(t, "2024-03-05T08:04:05.123Z", FormatTimestamp(at))
}

func TestIsDue(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	instants := []time.Time{
		t1,
		t1.Add(time.Millisecond),
		t1.Add(time.Minute),
		t1.Add(72 * time.Hour),
	}

	for _, a := range instants {
		for _, b := range instants {
			if a.After(b) {
				continue
			}
			assert.True(t, IsDue(a, b), "%s should be due at %s", a, b)
			if a.Before(b) {
				assert.False(t, IsDue(b, a), "%s should not be due at %s", b, a)
			}
		}
	}
}

func TestIsDueValue(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC)

	due, err := IsDueValue("2024-01-01T00:01:00.000Z", now)
	require.NoError(t, err)
	assert.True(t, due)

	due, err = IsDueValue("2099-01-01T00:00:00.000Z", now)
	require.NoError(t, err)
	assert.False(t, due)

	due, err = IsDueValue("not-a-date", now)
	assert.Error(t, err)
	assert.False(t, due)
}

func TestNormalizeScheduleDate(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		timeZone string
		want     time.Time
		wantErr  bool
	}{
		{"wire format", "2024-01-01T00:01:00.000Z", "", time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), false},
		{"rfc3339 with offset", "2024-01-01T01:01:00+01:00", "", time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), false},
		{"sub-millisecond truncated", "2024-01-01T00:01:00.123999Z", "", time.Date(2024, 1, 1, 0, 1, 0, 123000000, time.UTC), false},
		{"local time in zone", "2024-07-01T12:00:00", "Europe/Paris", time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC), false},
		{"local time defaults to utc", "2024-07-01 12:00:00", "", time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC), false},
		{"slash layout with offset", "07/01/2024 12:00:00 +0200", "America/New_York", time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC), false},
		{"empty", "  ", "", time.Time{}, true},
		{"garbage", "tomorrow", "", time.Time{}, true},
		{"unknown zone", "2024-07-01T12:00:00", "Mars/Olympus", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeScheduleDate(tt.value, tt.timeZone)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrDateParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}
