// Package common defines shared constants and sentinel errors used across
// smooth-core components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal        = errors.New("internal error")
	ErrVersionConflict = errors.New("version conflict")

	// Auth errors. ErrUnauthenticated means the credential itself is
	// missing, malformed, revoked or expired; ErrPermissionDenied means a
	// valid principal lacks the scope or tags for the resource.
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")

	// Validation errors (malformed payload, version supplied on create, ...).
	ErrValidation = errors.New("validation error")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// VersionConflictError reports a failed compare-and-swap write. It carries
// both the version the caller expected and the version actually stored, and
// matches ErrVersionConflict under errors.Is.
type VersionConflictError struct {
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, actual %d", e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
