// Package entitlement feeds the premium-unlock state into the profile's
// entitlement mirror.
//
// Purchase verification happens elsewhere. This package only reads its
// outcome: either a fixed value (Static) or a purchase-state file that the
// store integration rewrites (FileSource). The file holds a single JSON
// object:
//
//	{"watchUnlocked": true}
//
// A missing file means not unlocked.
package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/profile"
)

// Source reports whether the companion feature is unlocked.
type Source interface {
	WatchUnlocked(ctx context.Context) (bool, error)
}

// Target receives entitlement updates. *endpoint.Endpoint satisfies it.
type Target interface {
	SetWatchUnlocked(ctx context.Context, unlocked bool) (profile.Syncable, error)
}

// Static is a Source with a fixed answer.
type Static bool

// WatchUnlocked implements Source.
func (s Static) WatchUnlocked(context.Context) (bool, error) {
	return bool(s), nil
}

// state is the on-disk purchase-state document.
type state struct {
	WatchUnlocked bool `json:"watchUnlocked"`
}

// ReadFile parses a purchase-state file. A missing file reads as locked.
func ReadFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read purchase state: %w", err)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("failed to parse purchase state %s: %w", path, err)
	}
	return st.WatchUnlocked, nil
}

// WriteFile records unlocked in the purchase-state file at path.
func WriteFile(path string, unlocked bool) error {
	data, err := json.Marshal(state{WatchUnlocked: unlocked})
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write purchase state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Apply reads src once and forwards the value to t. A missing profile is
// not an error; the mirror is applied again on the next change.
func Apply(ctx context.Context, src Source, t Target) error {
	unlocked, err := src.WatchUnlocked(ctx)
	if err != nil {
		return err
	}
	if _, err := t.SetWatchUnlocked(ctx, unlocked); err != nil && !errors.Is(err, endpoint.ErrNoProfile) {
		return err
	}
	return nil
}
