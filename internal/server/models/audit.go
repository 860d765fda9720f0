package models

import "time"

// Audit outcomes.
const (
	AuditResultSuccess = "success"
	AuditResultError   = "error"
	AuditResultDenied  = "denied"
)

// AuditRecord is an immutable, write-once row describing one authorization
// decision or one committed mutation.
type AuditRecord struct {
	ID           string
	UserID       string
	Operation    string
	EntityType   string
	EntityID     string
	Result       string
	Version      int64
	ErrorMessage string
	Timestamp    time.Time
}
