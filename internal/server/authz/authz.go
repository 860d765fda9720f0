// Package authz implements scope and tag based authorization decisions.
// Every function here is pure: no I/O, no mutation, safe for concurrent use.
// The same evaluator is applied to every entity type and every access path,
// including list filtering and the change feed.
package authz

import (
	"strings"

	"github.com/loobric/smooth-core/internal/server/models"
)

// AdminWildcard grants every permission and bypasses tag checks.
const AdminWildcard = "admin:*"

// HasScope reports whether the granted scopes cover requiredScope.
// An exact match grants. AdminWildcard grants everything. An action
// wildcard such as "write:*" covers "write:items". Matching is
// case-sensitive.
func HasScope(scopes []string, requiredScope string) bool {
	for _, s := range scopes {
		if s == requiredScope || s == AdminWildcard {
			return true
		}
	}
	if action, _, ok := strings.Cut(requiredScope, ":"); ok {
		wildcard := action + ":*"
		for _, s := range scopes {
			if s == wildcard {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the scope set carries the admin wildcard.
func IsAdmin(scopes []string) bool {
	for _, s := range scopes {
		if s == AdminWildcard {
			return true
		}
	}
	return false
}

// TagsIntersect reports whether any tag appears in both sets. The check is
// symmetric.
func TagsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// TagAccess decides tag-based visibility: an empty principal tag set means
// the credential is unrestricted, an empty resource tag set means the
// resource carries no restriction, otherwise the sets must intersect.
func TagAccess(principalTags, resourceTags []string) bool {
	if len(principalTags) == 0 {
		return true
	}
	if len(resourceTags) == 0 {
		return true
	}
	return TagsIntersect(principalTags, resourceTags)
}

// Allow is the single authorization decision applied to create, read,
// update, delete and list operations alike:
//
//  1. the principal must hold requiredScope (directly or via wildcard);
//  2. the admin wildcard bypasses ownership and tag checks;
//  3. every other principal is confined to its own resources;
//  4. within that, key principals are further restricted by TagAccess.
func Allow(p *models.Principal, resourceOwnerID string, resourceTags []string, requiredScope string) bool {
	if !HasScope(p.Scopes, requiredScope) {
		return false
	}
	if IsAdmin(p.Scopes) {
		return true
	}
	if p.OwnerID != resourceOwnerID {
		return false
	}
	if p.IsSessionAuth {
		return true
	}
	return TagAccess(p.Tags, resourceTags)
}

// AllowResource applies Allow to a resource record.
func AllowResource(p *models.Principal, res *models.Resource, requiredScope string) bool {
	return Allow(p, res.OwnerID, res.Tags, requiredScope)
}

// FilterResources returns the subset of resources visible to the principal
// for requiredScope. List operations filter rather than fail.
func FilterResources(p *models.Principal, items []*models.Resource, requiredScope string) []*models.Resource {
	filtered := make([]*models.Resource, 0, len(items))
	for _, item := range items {
		if AllowResource(p, item, requiredScope) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// FilterEvents returns the subset of change events visible to the principal.
func FilterEvents(p *models.Principal, events []*models.ChangeEvent, requiredScope string) []*models.ChangeEvent {
	filtered := make([]*models.ChangeEvent, 0, len(events))
	for _, ev := range events {
		if Allow(p, ev.OwnerID, ev.Tags, requiredScope) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// ScopesForRole maps an account role to the scope set a session principal
// holds. Sessions are unrestricted by tags; admins additionally bypass
// ownership checks via the wildcard.
func ScopesForRole(role string) []string {
	if role == models.RoleAdmin {
		return []string{AdminWildcard}
	}
	return []string{"read", "write:*", "delete:*"}
}
