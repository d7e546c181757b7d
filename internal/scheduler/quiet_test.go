package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuietWindow(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    QuietWindow
		wantErr bool
	}{
		{"wrapping window", "23:00-08:00", QuietWindow{Start: 23 * 60, End: 8 * 60}, false},
		{"same day window", "13:00-15:30", QuietWindow{Start: 13 * 60, End: 15*60 + 30}, false},
		{"disabled", "00:00-00:00", QuietWindow{Start: 0, End: 0}, false},
		{"missing dash", "23:00", QuietWindow{}, true},
		{"bad hour", "25:00-08:00", QuietWindow{}, true},
		{"bad minute", "23:61-08:00", QuietWindow{}, true},
		{"not a number", "aa:00-08:00", QuietWindow{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuietWindow(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuietWindow_Contains(t *testing.T) {
	wrapping := QuietWindow{Start: 23 * 60, End: 8 * 60}
	sameDay := QuietWindow{Start: 13 * 60, End: 15 * 60}
	disabled := QuietWindow{Start: 9 * 60, End: 9 * 60}

	at := func(hour, minute int) time.Time {
		return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
	}

	assert.True(t, wrapping.Contains(at(23, 30), time.UTC))
	assert.True(t, wrapping.Contains(at(2, 0), time.UTC))
	assert.True(t, wrapping.Contains(at(7, 59), time.UTC))
	assert.False(t, wrapping.Contains(at(8, 0), time.UTC))
	assert.False(t, wrapping.Contains(at(12, 0), time.UTC))
	assert.False(t, wrapping.Contains(at(22, 59), time.UTC))

	assert.True(t, sameDay.Contains(at(13, 0), time.UTC))
	assert.True(t, sameDay.Contains(at(14, 59), time.UTC))
	assert.False(t, sameDay.Contains(at(15, 0), time.UTC))
	assert.False(t, sameDay.Contains(at(12, 59), time.UTC))

	assert.False(t, disabled.Contains(at(9, 0), time.UTC))
}

func TestNextAllowed(t *testing.T) {
	wrapping := QuietWindow{Start: 23 * 60, End: 8 * 60}

	tests := []struct {
		name      string
		candidate time.Time
		want      time.Time
	}{
		{
			"outside returns unchanged",
			time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			"before midnight pushes to next morning",
			time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
		},
		{
			"after midnight pushes to same morning",
			time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
		},
		{
			"window end is allowed",
			time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextAllowed(tt.candidate, wrapping, time.UTC)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestNextAllowed_SameDayWindow(t *testing.T) {
	window := QuietWindow{Start: 13 * 60, End: 15 * 60}

	candidate := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	got := NextAllowed(candidate, window, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), got)
}

func TestNextAllowed_DisabledWindow(t *testing.T) {
	window := QuietWindow{}

	candidate := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, candidate, NextAllowed(candidate, window, time.UTC))
}
