// Package repository persists marketplace snapshots. A store only moves
// opaque encoded bytes; encoding belongs to the snapshot package.
package repository

import "errors"

// ErrSnapshotNotFound is returned by Latest when nothing has been saved.
// Startup treats it as "build from the catalog".
var ErrSnapshotNotFound = errors.New("snapshot not found")
