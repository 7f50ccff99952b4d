package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)

	r, err := ResolveRange("", "", 0, 7, now)
	require.NoError(t, err)
	require.Equal(t, "2026-03-04", r.StartDate())
	require.Equal(t, "2026-03-10", r.EndDate())
	require.Equal(t, 7, r.Len())

	r, err = ResolveRange("", "", 1, 7, now)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-03-10"}, r.Days())

	r, err = ResolveRange("2026-02-27", "2026-03-02", 5, 7, now)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-02-27", "2026-02-28", "2026-03-01", "2026-03-02"}, r.Days())
	require.True(t, r.Contains("2026-03-01"))
	require.False(t, r.Contains("2026-03-03"))

	r, err = ResolveRange("2026-03-05", "2026-03-01", 0, 7, now)
	require.NoError(t, err)
	require.Zero(t, r.Len())
	require.Empty(t, r.Days())
	require.False(t, r.Contains("2026-03-03"))
}

func TestResolveRange_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		end    string
		days   int
		reason string
	}{
		{name: "start only", start: "2026-01-01", reason: "incomplete_range"},
		{name: "bad start", start: "01/01/2026", end: "2026-01-02", reason: "invalid_start_date"},
		{name: "bad end", start: "2026-01-01", end: "tomorrow", reason: "invalid_end_date"},
		{name: "negative days", days: -3, reason: "invalid_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveRange(tt.start, tt.end, tt.days, 7, time.Now())
			var uerr *Error
			require.ErrorAs(t, err, &uerr)
			require.Equal(t, ErrorInvalidInput, uerr.Code)
			require.Equal(t, tt.reason, uerr.Reason)
		})
	}
}
