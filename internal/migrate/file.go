package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spellflare/spellsync/internal/profile"
)

// ImportOptions controls ReadFile.
type ImportOptions struct {
	// DeviceIdentifier attributes bare profiles (files without the sync
	// wrapper) to this device.
	DeviceIdentifier string

	// Now stamps bare profiles. Defaults to time.Now.
	Now func() time.Time
}

// ReadFile reads a profile file written by any client version. Files may
// hold a full Syncable or just a bare Profile, as persisted by the original
// onboarding flow; bare profiles are wrapped and stamped.
func ReadFile(path string, opts ImportOptions) (profile.Syncable, Report, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return profile.Syncable{}, Report{}, fmt.Errorf("failed to read profile file: %w", err)
	}
	return Decode(data, opts)
}

// Decode is ReadFile for in-memory data.
func Decode(data []byte, opts ImportOptions) (profile.Syncable, Report, error) {
	s, report, err := DecodeSyncable(data)
	if err == nil {
		return s, report, nil
	}
	if !errors.Is(err, ErrUnrecognized) || !looksBare(data) {
		return profile.Syncable{}, Report{}, err
	}

	payload, perr := DecodeProfile(data)
	if perr != nil {
		return profile.Syncable{}, Report{}, fmt.Errorf("failed to decode bare profile: %w", perr)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	s = profile.Wrap(Normalize(payload), opts.DeviceIdentifier, false, now())
	report = Report{FromVersion: payload.Version()}
	report.CoinsGranted, report.Granted = s.Profile.GrantRetroactiveCoins()
	return s, report, nil
}

func looksBare(data []byte) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, hasProfile := raw["profile"]
	_, hasName := raw["name"]
	return !hasProfile && hasName
}
