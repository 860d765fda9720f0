package models

import "time"

// Change operations recorded in the feed.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// ChangeEvent is an immutable record of one committed mutation. Events for an
// entity type are ordered by (version, timestamp, entity_id) ascending and
// are never updated or deleted.
type ChangeEvent struct {
	ID         string
	EntityType string
	EntityID   string
	OwnerID    string
	// Tags mirror the resource's tags at mutation time so feed results can
	// be filtered without re-reading live records.
	Tags      []string
	Version   int64
	Operation string
	Timestamp time.Time
}
