// Package merge holds the two conflict policies used when two copies of a
// profile meet.
//
// The policies are deliberately separate and are chosen by the call site:
//
//	LWW              - peer-to-peer sync between primary and companion.
//	                   Whole-record replace; the newer LastModified wins.
//	ResolveConflict  - cloud backup reconciliation. The record with more
//	                   completed levels wins, then more coins, then newer.
//
// Both are pure and total: they always return one of their two arguments
// unchanged, never a blend. Exact ties fall through to a fixed ordering on
// DeviceIdentifier and then the canonical encoding, so swapping the
// arguments never changes which record comes back. Identical inputs return
// local.
//
// LWW can silently drop progress. If the companion completed a level while
// offline and the primary later touched its own copy, the companion's record
// loses as a whole when they reconnect.
package merge

import (
	"bytes"
	"encoding/json"

	"github.com/spellflare/spellsync/internal/profile"
)

// Policy picks a winner between the local record and a remote one.
type Policy func(local, remote profile.Syncable) profile.Syncable

// Side names which argument a policy returned.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Rule names the comparison that decided a merge.
type Rule string

const (
	RuleLevels       Rule = "levels"
	RuleCoins        Rule = "coins"
	RuleLastModified Rule = "lastModified"
	RuleTiebreak     Rule = "tiebreak"
	RuleIdentical    Rule = "identical"

	// RuleAbsent is reported by callers that adopt a record because the
	// other side had none. The policies themselves never return it.
	RuleAbsent Rule = "absent"
)

// Decision describes the outcome of a merge for logging and metrics.
type Decision struct {
	Winner profile.Syncable
	Side   Side
	Rule   Rule
}

// Explainer is a Policy that also reports its reasoning.
type Explainer func(local, remote profile.Syncable) Decision

// LWW is the last-writer-wins policy for peer sync.
func LWW(local, remote profile.Syncable) profile.Syncable {
	return ExplainLWW(local, remote).Winner
}

// ResolveConflict is the progress-priority policy for cloud reconciliation.
func ResolveConflict(local, remote profile.Syncable) profile.Syncable {
	return ExplainResolveConflict(local, remote).Winner
}

// ExplainLWW runs LWW and reports why the winner was chosen.
func ExplainLWW(local, remote profile.Syncable) Decision {
	if d, ok := byTime(local, remote); ok {
		return d
	}
	return tiebreak(local, remote)
}

// ExplainResolveConflict runs ResolveConflict and reports why the winner
// was chosen.
func ExplainResolveConflict(local, remote profile.Syncable) Decision {
	localLevels := local.Profile.TotalCompletedLevels()
	remoteLevels := remote.Profile.TotalCompletedLevels()
	if localLevels != remoteLevels {
		return pick(local, remote, localLevels > remoteLevels, RuleLevels)
	}

	if local.Profile.TotalCoins != remote.Profile.TotalCoins {
		return pick(local, remote, local.Profile.TotalCoins > remote.Profile.TotalCoins, RuleCoins)
	}

	if d, ok := byTime(local, remote); ok {
		return d
	}
	return tiebreak(local, remote)
}

func byTime(local, remote profile.Syncable) (Decision, bool) {
	switch {
	case local.LastModified.After(remote.LastModified):
		return pick(local, remote, true, RuleLastModified), true
	case remote.LastModified.After(local.LastModified):
		return pick(local, remote, false, RuleLastModified), true
	}
	return Decision{}, false
}

// tiebreak orders records whose timestamps are equal. It only has to be a
// consistent total order so that both argument orders agree.
func tiebreak(local, remote profile.Syncable) Decision {
	if local.Equal(remote) {
		return pick(local, remote, true, RuleIdentical)
	}
	if local.DeviceIdentifier != remote.DeviceIdentifier {
		return pick(local, remote, local.DeviceIdentifier > remote.DeviceIdentifier, RuleTiebreak)
	}

	cmp := bytes.Compare(canonical(local), canonical(remote))
	return pick(local, remote, cmp >= 0, RuleTiebreak)
}

func canonical(s profile.Syncable) []byte {
	// encoding/json sorts map keys and LevelSet encodes sorted, so this is
	// stable for equal data.
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return data
}

func pick(local, remote profile.Syncable, localWins bool, rule Rule) Decision {
	if localWins {
		return Decision{Winner: local, Side: SideLocal, Rule: rule}
	}
	return Decision{Winner: remote, Side: SideRemote, Rule: rule}
}
