// Package cache provides the durable single-slot store for a device's
// last known good profile.
//
// Each device keeps exactly one profile. The slot is written only by that
// device's sync endpoint and cloud bridge, which share one execution
// context, so implementations do not need cross-call transactions: the last
// Save wins and survives a process restart.
//
// Two implementations are provided:
//
//	SQLite  - embedded database file (ncruces/go-sqlite3, WAL mode)
//	Memory  - process-local, for tests and ephemeral devices
//
// Both also persist the pending-changes flag and the stable device
// identifier so that a restart resumes retrying where it left off.
package cache

import (
	"context"
	"errors"

	"github.com/spellflare/spellsync/internal/profile"
)

var (
	// ErrNotFound is returned by Load when the slot is empty.
	ErrNotFound = errors.New("cache: no profile stored")

	// ErrCorrupt is returned by Load when the stored payload cannot be
	// decoded. The payload is left in place; callers treat the slot as empty.
	ErrCorrupt = errors.New("cache: stored profile is unreadable")
)

// Cache is the local profile slot.
type Cache interface {
	// Load returns the stored profile, upgraded to the current schema.
	// Returns ErrNotFound when nothing is stored.
	Load(ctx context.Context) (profile.Syncable, error)

	// Save replaces the stored profile.
	Save(ctx context.Context, s profile.Syncable) error

	// Clear removes the stored profile and the pending flag.
	Clear(ctx context.Context) error
}

// PendingStore persists the "local changes not yet acknowledged by the
// peer" flag.
type PendingStore interface {
	Pending(ctx context.Context) (bool, error)
	SetPending(ctx context.Context, pending bool) error
}

// DeviceStore hands out the stable identifier of this device, creating it
// on first use.
type DeviceStore interface {
	DeviceID(ctx context.Context) (string, error)
}

// Store is everything a device needs from local storage.
type Store interface {
	Cache
	PendingStore
	DeviceStore
	Close() error
}
