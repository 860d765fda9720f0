package models

import "time"

// Principal is the identity and permission set resolved from one request's
// credential. It lives only for the request; it is never persisted.
type Principal struct {
	OwnerID string
	Scopes  []string
	// Tags restrict resource visibility for key principals. Session
	// principals always carry an empty set (unrestricted).
	Tags []string
	// IsSessionAuth is true for interactively logged-in owners, who always
	// act on their own data regardless of tags.
	IsSessionAuth bool
	// GrantID is set when the principal was resolved from an API key.
	GrantID   string
	ExpiresAt *time.Time
}
