package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuietWindow is a daily window during which announcements are deferred,
// not suppressed. It may wrap across midnight (e.g. 23:00-08:00).
// Start == End disables the window.
type QuietWindow struct {
	Start int // minutes since local midnight
	End   int
}

// ParseQuietWindow parses a "HH:MM-HH:MM" window specification
func ParseQuietWindow(spec string) (QuietWindow, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return QuietWindow{}, fmt.Errorf("invalid quiet hours spec %q", spec)
	}

	start, err := parseMinuteOfDay(parts[0])
	if err != nil {
		return QuietWindow{}, fmt.Errorf("invalid quiet hours start: %w", err)
	}
	end, err := parseMinuteOfDay(parts[1])
	if err != nil {
		return QuietWindow{}, fmt.Errorf("invalid quiet hours end: %w", err)
	}

	return QuietWindow{Start: start, End: end}, nil
}

func parseMinuteOfDay(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// Contains reports whether the instant falls inside the quiet window
func (w QuietWindow) Contains(t time.Time, loc *time.Location) bool {
	if w.Start == w.End {
		return false
	}
	md := minuteOfDay(t.In(loc))
	if w.Start <= w.End {
		return md >= w.Start && md < w.End
	}
	// Window wraps across midnight
	return md >= w.Start || md < w.End
}

// NextAllowed maps a candidate instant to the next instant outside the
// quiet window. Instants already outside are returned unchanged; instants
// inside map to the end of the same quiet night.
func NextAllowed(candidate time.Time, w QuietWindow, loc *time.Location) time.Time {
	if !w.Contains(candidate, loc) {
		return candidate
	}

	local := candidate.In(loc)
	year, month, day := local.Date()
	endToday := time.Date(year, month, day, w.End/60, w.End%60, 0, 0, loc)

	if w.Start <= w.End {
		return endToday
	}
	// Wrapping window: before midnight the quiet night ends tomorrow
	if minuteOfDay(local) >= w.Start {
		return endToday.AddDate(0, 0, 1)
	}
	return endToday
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
