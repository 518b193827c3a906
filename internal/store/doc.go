// Package store persists the optional invocation audit log in SQLite.
//
// Each tool call appends one Invocation: the tool name, the profile it ran
// under, its outcome (ok, error or login_required), the classified error type,
// and the duration. Arguments, credentials and tokens are never written, so
// the database is safe to keep on shared disks.
//
// The database uses modernc.org/sqlite (pure Go, no cgo) in WAL mode, and the
// schema is created automatically on open:
//
//	s, err := store.NewSQLiteStore("/var/lib/idgov-mcp/audit.db", logger)
//	...
//	recent, err := s.ListInvocations(ctx, store.InvocationFilter{Outcome: store.OutcomeError, Limit: 20})
//
// ListInvocations returns newest first; Limit defaults to 100 and is capped at 1000.
package store
