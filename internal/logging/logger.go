// Package logging defines the structured-logging interface the services
// and repositories log through. The server wires an slog-backed
// implementation; tests substitute a no-op one.
package logging

import "context"

// Logger is a context-aware structured logger. The variadic args are
// key-value pairs:
//
//	log.Info(ctx, "record updated", "entity_id", id, "version", v)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)

	// Warn is for unusual but non-fatal conditions, such as a failed
	// audit insert that must not abort the operation it describes.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given key-value pairs on
	// every record. Each service tags itself with a "module" pair.
	With(args ...any) Logger
}
