// Package auth turns inbound credentials into request principals. It covers
// both session tokens (JWT) and API keys backed by stored grants, and never
// consults resource data: resolution is independent of what is accessed later.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/server/authz"
	"github.com/loobric/smooth-core/internal/server/models"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
)

// Credential kinds accepted by the resolver.
const (
	KindSession = "session"
	KindKey     = "key"
)

// SystemOwnerID is the owner identity of the synthesized principal used
// when authentication is disabled by policy.
const SystemOwnerID = "system"

// Policy is the explicit auth configuration value constructed once at
// startup and passed into every resolution. There is no process-wide
// mutable toggle.
type Policy struct {
	Enabled bool
}

// Credential is an opaque bearer string plus its declared kind.
type Credential struct {
	Kind  string
	Token string
}

// Resolver resolves credentials against the credential store.
type Resolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	jwtSecret   []byte
	now         func() time.Time
}

// NewResolver constructs a Resolver over the given repositories.
func NewResolver(db *sql.DB, m repomanager.RepositoryManager, jwtSecret []byte) *Resolver {
	return &Resolver{db: db, repomanager: m, jwtSecret: jwtSecret, now: time.Now}
}

// Resolve turns a credential into a Principal or fails with
// common.ErrUnauthenticated. When the policy disables authentication it
// synthesizes a fixed, fully-privileged principal without touching the
// credential store.
func (r *Resolver) Resolve(ctx context.Context, policy Policy, cred Credential) (*models.Principal, error) {
	if !policy.Enabled {
		return &models.Principal{
			OwnerID:       SystemOwnerID,
			Scopes:        []string{authz.AdminWildcard},
			IsSessionAuth: true,
		}, nil
	}
	if cred.Token == "" {
		return nil, common.ErrUnauthenticated
	}
	switch cred.Kind {
	case KindSession:
		return r.resolveSession(ctx, cred.Token)
	case KindKey:
		return r.resolveKey(ctx, cred.Token)
	default:
		return nil, common.ErrUnauthenticated
	}
}

// resolveSession validates a JWT and builds a tag-unrestricted principal
// whose scopes follow the owner's role.
func (r *Resolver) resolveSession(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := ParseToken(token, r.jwtSecret)
	if err != nil {
		return nil, common.ErrUnauthenticated
	}

	user, err := r.repomanager.Users(r.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, common.ErrInternal
	}
	if !user.IsActive {
		return nil, common.ErrUnauthenticated
	}

	return &models.Principal{
		OwnerID:       user.ID,
		Scopes:        authz.ScopesForRole(user.Role),
		IsSessionAuth: true,
	}, nil
}

// resolveKey validates an API key against its grant. Revoked or expired
// grants never produce a principal. A successful resolution updates the
// grant's last-used timestamp as an observable side effect.
func (r *Resolver) resolveKey(ctx context.Context, raw string) (*models.Principal, error) {
	grantID, secret, err := SplitKey(raw)
	if err != nil {
		return nil, common.ErrUnauthenticated
	}

	grantRepo := r.repomanager.Grants(r.db)
	grant, err := grantRepo.GetByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, common.ErrInternal
	}
	if !VerifySecret(grant.SecretHash, secret) {
		return nil, common.ErrUnauthenticated
	}
	if !grant.Valid(r.now()) {
		return nil, common.ErrUnauthenticated
	}

	user, err := r.repomanager.Users(r.db).GetByID(ctx, grant.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, common.ErrInternal
	}
	if !user.IsActive {
		return nil, common.ErrUnauthenticated
	}

	if err := grantRepo.TouchLastUsed(ctx, grant.ID, r.now()); err != nil {
		return nil, common.ErrInternal
	}

	return &models.Principal{
		OwnerID:       user.ID,
		Scopes:        append([]string(nil), grant.Scopes...),
		Tags:          append([]string(nil), grant.Tags...),
		IsSessionAuth: false,
		GrantID:       grant.ID,
		ExpiresAt:     grant.ExpiresAt,
	}, nil
}
