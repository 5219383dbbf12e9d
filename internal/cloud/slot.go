// Package cloud keeps an off-device backup of the primary's profile and
// reconciles it with the local cache.
//
// The backup is a single slot per account. Reconciliation uses the
// progress-priority policy (merge.ResolveConflict), not the last-writer-wins
// policy of peer sync: a backup with more completed levels beats a newer
// local copy with fewer.
package cloud

import (
	"context"
	"errors"
	"sync"

	"github.com/spellflare/spellsync/internal/profile"
)

var (
	// ErrNoBackup is returned by Fetch when the slot is empty.
	ErrNoBackup = errors.New("cloud: no backup stored")

	// ErrCorruptBackup is returned by Fetch when the stored record cannot be
	// decoded.
	ErrCorruptBackup = errors.New("cloud: backup is unreadable")
)

// Slot is the remote single-record store.
type Slot interface {
	// Fetch returns the stored record, upgraded to the current schema.
	// Returns ErrNoBackup when the slot is empty.
	Fetch(ctx context.Context) (profile.Syncable, error)

	// Store replaces the stored record.
	Store(ctx context.Context, s profile.Syncable) error

	// Delete empties the slot. Deleting an empty slot is not an error.
	Delete(ctx context.Context) error
}

// MemorySlot is an in-process Slot.
type MemorySlot struct {
	mu     sync.Mutex
	record *profile.Syncable
	stores int
}

var _ Slot = (*MemorySlot)(nil)

// NewMemorySlot returns an empty slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Fetch(ctx context.Context) (profile.Syncable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return profile.Syncable{}, ErrNoBackup
	}
	return m.record.Clone(), nil
}

func (m *MemorySlot) Store(ctx context.Context, s profile.Syncable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	m.record = &c
	m.stores++
	return nil
}

func (m *MemorySlot) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = nil
	return nil
}

// Stores returns how many times Store was called.
func (m *MemorySlot) Stores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}
