// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/json"
	"time"
)

// Resource is a generic versioned, tagged, owned record. The payload is an
// opaque blob specific to the entity type; the core's invariants (version,
// tags, ownership) never depend on its internals.
type Resource struct {
	ID         string
	EntityType string
	OwnerID    string
	Tags       []string
	// Version starts at 1 and increments by exactly 1 on every successful
	// mutation, restores included.
	Version   int64
	Payload   json.RawMessage
	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
