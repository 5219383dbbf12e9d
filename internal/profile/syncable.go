package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CurrentSchemaVersion is the schema version written by this package.
const CurrentSchemaVersion = 2

// Syncable is the unit exchanged between devices and the cloud slot.
//
// It is treated as an immutable value: WithProfile and WithWatchUnlocked
// return a new Syncable instead of modifying the receiver.
type Syncable struct {
	Profile          Profile   `json:"profile"`
	LastModified     time.Time `json:"lastModified"`
	DeviceIdentifier string    `json:"deviceIdentifier"`
	SchemaVersion    int       `json:"schemaVersion"`

	// Mirrored from the purchase system so the companion can react to it.
	IsWatchUnlocked bool `json:"isWatchUnlocked"`
}

// Wrap creates a Syncable for p stamped with now.
func Wrap(p Profile, deviceID string, watchUnlocked bool, now time.Time) Syncable {
	return Syncable{
		Profile:          p.Clone(),
		LastModified:     stamp(now),
		DeviceIdentifier: deviceID,
		SchemaVersion:    CurrentSchemaVersion,
		IsWatchUnlocked:  watchUnlocked,
	}
}

// stamp drops the monotonic reading and location so timestamps compare
// equal after a JSON round trip.
func stamp(t time.Time) time.Time {
	return t.UTC()
}

// WithProfile returns a copy carrying p, stamped with now and attributed
// to deviceID. This is the only way a local mutation reaches the wire.
func (s Syncable) WithProfile(p Profile, deviceID string, now time.Time) Syncable {
	out := s.Clone()
	out.Profile = p.Clone()
	out.LastModified = stamp(now)
	out.DeviceIdentifier = deviceID
	out.SchemaVersion = CurrentSchemaVersion
	return out
}

// WithWatchUnlocked returns a copy with the entitlement mirror set.
func (s Syncable) WithWatchUnlocked(unlocked bool, deviceID string, now time.Time) Syncable {
	out := s.Clone()
	out.IsWatchUnlocked = unlocked
	out.LastModified = stamp(now)
	out.DeviceIdentifier = deviceID
	out.SchemaVersion = CurrentSchemaVersion
	return out
}

// Clone returns a deep copy.
func (s Syncable) Clone() Syncable {
	out := s
	out.Profile = s.Profile.Clone()
	return out
}

// Equal reports whether two Syncables carry the same data and metadata.
func (s Syncable) Equal(o Syncable) bool {
	return s.LastModified.Equal(o.LastModified) &&
		s.DeviceIdentifier == o.DeviceIdentifier &&
		s.SchemaVersion == o.SchemaVersion &&
		s.IsWatchUnlocked == o.IsWatchUnlocked &&
		s.Profile.Equal(o.Profile)
}

// Validate checks required metadata and profile invariants.
func (s Syncable) Validate() error {
	if s.LastModified.IsZero() {
		return fmt.Errorf("lastModified is required")
	}
	if s.SchemaVersion < 1 || s.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("unsupported schemaVersion %d", s.SchemaVersion)
	}
	if err := s.Profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return nil
}

// Encode returns the current-schema JSON encoding.
func (s Syncable) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	return data, nil
}

// WriteFile writes s to path as indented JSON, creating parent directories.
func WriteFile(path string, s Syncable) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid profile: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile file %s: %w", path, err)
	}
	return nil
}
