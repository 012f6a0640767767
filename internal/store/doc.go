// Package store provides the wrapper's event journal, persisted in SQLite.
//
// The journal records gateway lifecycle transitions (started, exited, start
// failures, restarts, token drift) and setup actions (onboarding runs, config
// resets and replacements, pairing approvals) so an operator can see what
// happened from the setup UI after the fact.
//
// SQLiteStore is backed by modernc.org/sqlite (pure Go, no cgo). The schema is
// created automatically on open.
//
// Recording is best-effort: Record logs and swallows failures so a broken
// journal never fails the operation being recorded. AppendEvent returns errors
// for callers that care.
package store
