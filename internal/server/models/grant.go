package models

import "time"

// Grant is the persisted definition behind an API-key credential: the scopes
// and tags the key carries plus its lifecycle state. The key secret itself is
// stored only as a bcrypt hash.
type Grant struct {
	ID         string
	UserID     string
	Name       string
	SecretHash string
	Scopes     []string
	// Tags restrict which resources the key can reach. An empty set imposes
	// no tag restriction.
	Tags       []string
	ExpiresAt  *time.Time
	Revoked    bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Valid reports whether the grant may still produce a principal at time now.
func (g *Grant) Valid(now time.Time) bool {
	if g.Revoked {
		return false
	}
	if g.ExpiresAt != nil && now.After(*g.ExpiresAt) {
		return false
	}
	return true
}
