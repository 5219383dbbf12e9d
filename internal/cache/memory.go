package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spellflare/spellsync/internal/profile"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.Mutex
	slot     *profile.Syncable
	pending  bool
	deviceID string
	saves    int
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store. deviceID may be empty, in which case a
// random identifier is generated on first use.
func NewMemory(deviceID string) *Memory {
	return &Memory{deviceID: deviceID}
}

// Load implements Cache.Load.
func (m *Memory) Load(ctx context.Context) (profile.Syncable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot == nil {
		return profile.Syncable{}, ErrNotFound
	}
	return m.slot.Clone(), nil
}

// Save implements Cache.Save.
func (m *Memory) Save(ctx context.Context, s profile.Syncable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := s.Clone()
	m.slot = &c
	m.saves++
	return nil
}

// Clear implements Cache.Clear.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slot = nil
	m.pending = false
	return nil
}

// Pending implements PendingStore.Pending.
func (m *Memory) Pending(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

// SetPending implements PendingStore.SetPending.
func (m *Memory) SetPending(ctx context.Context, pending bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = pending
	return nil
}

// DeviceID implements DeviceStore.DeviceID.
func (m *Memory) DeviceID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deviceID == "" {
		m.deviceID = uuid.New().String()
	}
	return m.deviceID, nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
