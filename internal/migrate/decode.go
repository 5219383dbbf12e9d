// Package migrate decodes stored and transmitted profiles of every schema
// version into the current model.
//
// Decoding happens in two explicit steps. DecodeProfile classifies the raw
// payload as a V1Profile (single-grade, flat level fields) or a V2Profile
// (per-grade maps), and Normalize turns either one into a profile.Profile.
// DecodeSyncable wraps this for the sync envelope and then runs the
// one-time retroactive coin grant.
//
// Accepted legacy shapes:
//
//	{"completedLevels": [1,2], "currentLevel": 3}              companion v1
//	{"completedLevelsByGrade": [1,2], "currentLevelByGrade": 3} primary v1
//	{"completedLevelsByGrade": [3,[1,2],4,[]]}                  key/value pair array
//	"lastModified": 757382400.5                                 seconds since 2001-01-01
package migrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spellflare/spellsync/internal/profile"
)

// ErrUnrecognized is returned for payloads that are not a profile at all.
var ErrUnrecognized = errors.New("migrate: unrecognized profile payload")

// referenceDate is the epoch used by numeric lastModified values written
// by the original mobile clients.
var referenceDate = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Payload is a decoded profile in its original schema: *V1Profile or *V2Profile.
type Payload interface {
	Version() int
}

// V1Profile is the pre-multi-grade shape: one flat completion set and one
// current level, both belonging to Grade.
type V1Profile struct {
	Name                    string
	Grade                   int
	CompletedLevels         []int
	CurrentLevel            int // 0 when absent
	TotalCoins              int
	CoinsMigrationCompleted bool
}

// Version implements Payload.
func (*V1Profile) Version() int { return 1 }

// V2Profile is the per-grade shape.
type V2Profile struct {
	Name                    string
	Grade                   int
	CompletedLevelsByGrade  map[int][]int
	CurrentLevelByGrade     map[int]int
	TotalCoins              int
	CoinsMigrationCompleted bool
}

// Version implements Payload.
func (*V2Profile) Version() int { return 2 }

// Report describes what decoding had to do to a payload.
type Report struct {
	// FromVersion is the schema the payload was written in.
	FromVersion int
	// CoinsGranted is the retroactive grant applied during decode.
	CoinsGranted int
	// Granted is true when the retroactive grant ran.
	Granted bool
}

// Upgraded reports whether the decoded value differs from what was stored
// and should be written back.
func (r Report) Upgraded() bool {
	return r.Granted || r.FromVersion < profile.CurrentSchemaVersion
}

// DecodeProfile classifies a serialized Profile.
func DecodeProfile(data []byte) (Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	var name string
	if err := decodeField(raw, "name", &name); err != nil {
		return nil, err
	}
	var grade int
	if err := decodeField(raw, "grade", &grade); err != nil {
		return nil, err
	}

	var coins int
	optionalField(raw, "totalCoins", &coins)
	var coinsMigrated bool
	optionalField(raw, "coinsMigrationCompleted", &coinsMigrated)

	completedByGrade, completedMapOK := gradeSets(raw["completedLevelsByGrade"])
	currentByGrade, currentMapOK := gradeLevels(raw["currentLevelByGrade"])

	// Flat legacy fields, either under their own key or stored under the
	// per-grade key by older primary builds.
	completedFlat, completedFlatOK := intSlice(raw["completedLevels"])
	if !completedFlatOK && !completedMapOK {
		completedFlat, completedFlatOK = intSlice(raw["completedLevelsByGrade"])
	}
	currentFlat, currentFlatOK := intValue(raw["currentLevel"])
	if !currentFlatOK && !currentMapOK {
		currentFlat, currentFlatOK = intValue(raw["currentLevelByGrade"])
	}

	if !completedMapOK && !currentMapOK && (completedFlatOK || currentFlatOK) {
		return &V1Profile{
			Name:                    name,
			Grade:                   grade,
			CompletedLevels:         completedFlat,
			CurrentLevel:            currentFlat,
			TotalCoins:              coins,
			CoinsMigrationCompleted: coinsMigrated,
		}, nil
	}

	v2 := &V2Profile{
		Name:                    name,
		Grade:                   grade,
		CompletedLevelsByGrade:  completedByGrade,
		CurrentLevelByGrade:     currentByGrade,
		TotalCoins:              coins,
		CoinsMigrationCompleted: coinsMigrated,
	}
	// Half-migrated records: one field per-grade, the other still flat.
	if !completedMapOK && completedFlatOK {
		v2.CompletedLevelsByGrade = map[int][]int{grade: completedFlat}
	}
	if !currentMapOK && currentFlatOK {
		v2.CurrentLevelByGrade = map[int]int{grade: currentFlat}
	}
	return v2, nil
}

// Normalize converts any payload into a current Profile with every grade
// populated and all values clamped into range. It does not grant coins.
func Normalize(p Payload) profile.Profile {
	var out profile.Profile

	switch v := p.(type) {
	case *V1Profile:
		grade := profile.ClampGrade(v.Grade)
		out = profile.Profile{
			Name:                    v.Name,
			Grade:                   grade,
			CompletedLevelsByGrade:  map[int]profile.LevelSet{grade: profile.NewLevelSet(v.CompletedLevels...)},
			CurrentLevelByGrade:     map[int]int{},
			TotalCoins:              v.TotalCoins,
			CoinsMigrationCompleted: v.CoinsMigrationCompleted,
		}
		if v.CurrentLevel > 0 {
			out.CurrentLevelByGrade[grade] = v.CurrentLevel
		}

	case *V2Profile:
		out = profile.Profile{
			Name:                    v.Name,
			Grade:                   v.Grade,
			CompletedLevelsByGrade:  make(map[int]profile.LevelSet, len(v.CompletedLevelsByGrade)),
			CurrentLevelByGrade:     make(map[int]int, len(v.CurrentLevelByGrade)),
			TotalCoins:              v.TotalCoins,
			CoinsMigrationCompleted: v.CoinsMigrationCompleted,
		}
		for g, levels := range v.CompletedLevelsByGrade {
			out.CompletedLevelsByGrade[g] = profile.NewLevelSet(levels...)
		}
		for g, l := range v.CurrentLevelByGrade {
			out.CurrentLevelByGrade[g] = l
		}
	}

	out.Normalize()
	return out
}

// DecodeSyncable decodes a serialized Syncable of any schema version,
// upgrades it to the current schema and runs the retroactive coin grant.
// Callers holding durable storage must persist the result when
// Report.Upgraded is true.
func DecodeSyncable(data []byte) (profile.Syncable, Report, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return profile.Syncable{}, Report{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	profileData, ok := raw["profile"]
	if !ok || isNull(profileData) {
		return profile.Syncable{}, Report{}, fmt.Errorf("%w: missing profile", ErrUnrecognized)
	}
	payload, err := DecodeProfile(profileData)
	if err != nil {
		return profile.Syncable{}, Report{}, fmt.Errorf("failed to decode profile: %w", err)
	}

	lastModified, err := decodeTimestamp(raw["lastModified"])
	if err != nil {
		return profile.Syncable{}, Report{}, err
	}

	var deviceID string
	optionalField(raw, "deviceIdentifier", &deviceID)

	version := 1
	optionalField(raw, "schemaVersion", &version)
	if version < payload.Version() {
		version = payload.Version()
	}

	var watchUnlocked bool
	optionalField(raw, "isWatchUnlocked", &watchUnlocked)

	s := profile.Syncable{
		Profile:          Normalize(payload),
		LastModified:     lastModified,
		DeviceIdentifier: deviceID,
		SchemaVersion:    profile.CurrentSchemaVersion,
		IsWatchUnlocked:  watchUnlocked,
	}

	report := Report{FromVersion: version}
	report.CoinsGranted, report.Granted = s.Profile.GrantRetroactiveCoins()
	return s, report, nil
}

// Upgrade runs the grant on an already decoded value. It exists for
// callers that hold a Syncable from another source; the grant is a no-op
// for migrated records.
func Upgrade(s profile.Syncable) (profile.Syncable, Report) {
	out := s.Clone()
	out.Profile.Normalize()
	report := Report{FromVersion: s.SchemaVersion}
	report.CoinsGranted, report.Granted = out.Profile.GrantRetroactiveCoins()
	out.SchemaVersion = profile.CurrentSchemaVersion
	return out, report
}

func decodeField(raw map[string]json.RawMessage, key string, dst interface{}) error {
	data, ok := raw[key]
	if !ok || isNull(data) {
		return fmt.Errorf("%w: missing %s", ErrUnrecognized, key)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: invalid %s: %v", ErrUnrecognized, key, err)
	}
	return nil
}

// optionalField leaves dst at its default when the key is absent or malformed.
func optionalField(raw map[string]json.RawMessage, key string, dst interface{}) {
	data, ok := raw[key]
	if !ok || isNull(data) {
		return
	}
	_ = json.Unmarshal(data, dst)
}

func decodeTimestamp(data json.RawMessage) (time.Time, error) {
	if len(data) == 0 || isNull(data) {
		return time.Time{}, fmt.Errorf("%w: missing lastModified", ErrUnrecognized)
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid lastModified %q", ErrUnrecognized, text)
		}
		return t.UTC(), nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid lastModified: %v", ErrUnrecognized, err)
	}
	whole := int64(seconds)
	nanos := int64((seconds - float64(whole)) * float64(time.Second))
	return referenceDate.Add(time.Duration(whole)*time.Second + time.Duration(nanos)), nil
}

func isNull(data json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func intSlice(data json.RawMessage) ([]int, bool) {
	if len(data) == 0 || isNull(data) {
		return nil, false
	}
	var out []int
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}

func intValue(data json.RawMessage) (int, bool) {
	if len(data) == 0 || isNull(data) {
		return 0, false
	}
	var out int
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, false
	}
	return out, true
}

// gradeSets decodes a grade -> levels map written either as a JSON object
// keyed by grade or as a flat [key, value, key, value] array.
func gradeSets(data json.RawMessage) (map[int][]int, bool) {
	if len(data) == 0 || isNull(data) {
		return nil, false
	}

	var obj map[string][]int
	if err := json.Unmarshal(data, &obj); err == nil {
		out := make(map[int][]int, len(obj))
		for k, v := range obj {
			if g, err := strconv.Atoi(k); err == nil {
				out[g] = v
			}
		}
		return out, true
	}

	pairs, ok := pairArray(data)
	if !ok {
		return nil, false
	}
	out := make(map[int][]int, len(pairs))
	for _, kv := range pairs {
		var levels []int
		if err := json.Unmarshal(kv.value, &levels); err != nil {
			return nil, false
		}
		out[kv.key] = levels
	}
	return out, true
}

// gradeLevels is gradeSets for grade -> level maps.
func gradeLevels(data json.RawMessage) (map[int]int, bool) {
	if len(data) == 0 || isNull(data) {
		return nil, false
	}

	var obj map[string]int
	if err := json.Unmarshal(data, &obj); err == nil {
		out := make(map[int]int, len(obj))
		for k, v := range obj {
			if g, err := strconv.Atoi(k); err == nil {
				out[g] = v
			}
		}
		return out, true
	}

	pairs, ok := pairArray(data)
	if !ok {
		return nil, false
	}
	out := make(map[int]int, len(pairs))
	for _, kv := range pairs {
		var level int
		if err := json.Unmarshal(kv.value, &level); err != nil {
			return nil, false
		}
		out[kv.key] = level
	}
	return out, true
}

type pair struct {
	key   int
	value json.RawMessage
}

// pairArray splits [k1, v1, k2, v2, ...]. Odd-length arrays and arrays with
// non-integer keys are rejected here; callers reject values of the wrong
// type, which is what separates [3,[1,2]] from a flat legacy [1,2].
func pairArray(data json.RawMessage) ([]pair, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items)%2 != 0 {
		return nil, false
	}

	pairs := make([]pair, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		var key int
		if err := json.Unmarshal(items[i], &key); err != nil {
			return nil, false
		}
		pairs = append(pairs, pair{key: key, value: items[i+1]})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return pairs, true
}
