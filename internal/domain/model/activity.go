package model

import "time"

// Activity is the canonical record a platform adapter produces from raw
// upstream data. Records are upserted keyed by (Platform, ExternalID), so
// re-ingesting the same external id updates rather than duplicates.
type Activity struct {
	Platform   Platform
	ExternalID string
	Type       string
	Title      string
	Cover      string
	URL        string
	OccurredAt time.Time
	// Progress is a platform-defined 0-100 percentage (e.g. recent playtime
	// share for games); Rating is a platform-defined score when present.
	Progress int
	Rating   float64
	// Duration is cumulative minutes where the platform reports one.
	Duration int
	Metadata map[string]string
}
