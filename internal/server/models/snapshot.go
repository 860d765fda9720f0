package models

import (
	"encoding/json"
	"time"
)

// Snapshot is an immutable capture of a record's payload at the moment it was
// superseded. Exactly one snapshot exists per historical version; the current
// version lives only as the live Resource until it is superseded in turn.
type Snapshot struct {
	ID         string
	EntityType string
	EntityID   string
	// Version is the version being superseded, not the new one.
	Version       int64
	Payload       json.RawMessage
	Tags          []string
	ChangeSummary string
	CapturedBy    string
	CapturedAt    time.Time
}
