package model

import "time"

// DateLayout is the calendar-day format used for snapshot bucketing.
const DateLayout = "2006-01-02"

// DateOf buckets an instant into its UTC calendar day.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// PlaytimeSnapshot is a point-in-time recording of an externally-reported
// cumulative playtime counter. At most one snapshot exists per
// (GameID, Date). Upstream counters are nominally monotonic but not trusted
// to be, so DailyDelta is clamped at zero.
type PlaytimeSnapshot struct {
	GameID         string
	Date           string // UTC calendar day, DateLayout.
	PlatformUserID string
	GameName       string
	Playtime       int // Cumulative minutes as reported upstream.
	DailyDelta     int // max(0, Playtime - previous.Playtime); 0 for a baseline.
	SnapshotAt     time.Time
}

// DeltaFrom computes the clamped non-negative delta against a prior cumulative
// value. prev < 0 means "no prior snapshot": the first observation establishes
// a baseline, not a delta.
func DeltaFrom(current, prev int) int {
	if prev < 0 {
		return 0
	}
	if current <= prev {
		return 0
	}
	return current - prev
}

// DailySummaryRow is one entity's delta for a given day.
type DailySummaryRow struct {
	GameID     string
	GameName   string
	DailyDelta int
	Playtime   int
}
