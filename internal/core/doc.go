// Package core provides the business logic for spreadsheet consolidation.
//
// This package contains all domain logic independent of any UI or transport
// layer. It is used by the web handlers and the command line tool alike.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Projects: Named workspaces kept by the [ProjectStore] on disk, each with
//     its own settings, upload log and audit trail.
//   - Service: The main entry point for all operations (upload, export,
//     analytics, reset).
//   - Snapshot: The consolidated table of a project, stored as a gob file
//     and served through the [TableCache].
//   - Tasks: Background jobs such as export pre-building and risk scans.
//
// # Consolidation
//
// Every uploaded file must carry the same ordered column names as the
// project's table. Rows are appended and tagged with the id of the upload
// they came from, so one upload can later be removed again:
//
//  1. Client calls [Service.Upload] with one or more files
//  2. Each file is decoded by the configured reader and its numeric columns
//     are detected
//  3. The columns are checked against the table; a mismatch rejects that
//     file only
//  4. The snapshot is written once for the batch and derived caches are
//     dropped
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - SCH001: Column mismatch
//   - PRJ001-PRJ003: Project errors (none selected, not found, exists)
//   - DATA001-DATA005: Data errors (no data, columns, filters)
//   - FILE001-FILE007: File errors (size, encoding, format)
//   - UPL001-UPL005: Upload errors (not found, busy, cancelled, timeout)
//
// # Audit Logging
//
// Project changes are recorded in a per-project audit log, optionally
// mirrored to Postgres. Old mirrored entries are purged by the maintenance
// scheduler based on the configured retention.
package core
