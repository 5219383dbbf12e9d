package merge

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spellflare/spellsync/internal/profile"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

// makeProfile builds a Syncable with the given number of completed levels
// in grade 1, coin balance and timestamp.
func makeProfile(device string, levels, coins, seconds int) profile.Syncable {
	p := profile.New("Ada", 1)
	for l := 1; l <= levels; l++ {
		p.CompleteLevel(l)
	}
	p.TotalCoins = coins
	return profile.Wrap(p, device, false, at(seconds))
}

func randomProfile(rng *rand.Rand) profile.Syncable {
	p := profile.New(fmt.Sprintf("user-%d", rng.Intn(3)), rng.Intn(7)+1)
	for i := rng.Intn(6); i > 0; i-- {
		p.SetGrade(rng.Intn(7) + 1)
		p.CompleteLevel(rng.Intn(50) + 1)
	}
	p.TotalCoins = rng.Intn(3) * 100
	return profile.Wrap(p, fmt.Sprintf("dev-%d", rng.Intn(2)), rng.Intn(2) == 0, at(rng.Intn(3)))
}

var policies = map[string]Policy{
	"LWW":             LWW,
	"ResolveConflict": ResolveConflict,
}

func TestPolicies_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				p := randomProfile(rng)
				assert.True(t, policy(p, p).Equal(p), "merge(p, p) must equal p")
			}
		})
	}
}

func TestPolicies_ReturnOneInput(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 500; i++ {
				a, b := randomProfile(rng), randomProfile(rng)
				got := policy(a, b)
				require.True(t, got.Equal(a) || got.Equal(b), "result must be one of the inputs")
			}
		})
	}
}

func TestPolicies_Commutative(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 500; i++ {
				a, b := randomProfile(rng), randomProfile(rng)
				ab, ba := policy(a, b), policy(b, a)
				require.True(t, ab.Equal(ba), "merge(a,b) and merge(b,a) disagree:\n%+v\n%+v", ab, ba)
			}
		})
	}
}

func TestLWW_NewerWins(t *testing.T) {
	older := makeProfile("watch", 9, 900, 5)
	newer := makeProfile("phone", 1, 0, 10)

	assert.True(t, LWW(newer, older).Equal(newer))
	assert.True(t, LWW(older, newer).Equal(newer))

	d := ExplainLWW(older, newer)
	assert.Equal(t, SideRemote, d.Side)
	assert.Equal(t, RuleLastModified, d.Rule)
}

func TestLWW_TieKeepsLocalWhenIdentical(t *testing.T) {
	a := makeProfile("phone", 3, 0, 10)
	b := a.Clone()

	d := ExplainLWW(a, b)
	assert.Equal(t, SideLocal, d.Side)
	assert.Equal(t, RuleIdentical, d.Rule)
}

func TestLWW_TieBetweenDifferentRecords(t *testing.T) {
	a := makeProfile("phone", 3, 0, 10)
	b := makeProfile("watch", 4, 0, 10)

	assert.Equal(t, RuleTiebreak, ExplainLWW(a, b).Rule)
	assert.True(t, LWW(a, b).Equal(LWW(b, a)))
}

// Documents the lossy side of whole-record LWW: the stale side's extra
// progress disappears.
func TestLWW_DropsStaleProgress(t *testing.T) {
	phone := makeProfile("phone", 0, 0, 10)
	phone.Profile.CompleteLevel(5)

	watch := makeProfile("watch", 0, 0, 5)
	watch.Profile.CompleteLevel(3)

	merged := LWW(phone, watch)
	require.True(t, merged.Equal(phone))
	assert.False(t, merged.Profile.IsLevelCompleted(3), "level 3 from the stale record is lost under LWW")
}

func TestResolveConflict_ProgressPriority(t *testing.T) {
	tests := []struct {
		name     string
		local    profile.Syncable
		remote   profile.Syncable
		wantSide Side
		wantRule Rule
	}{
		{
			name:     "more levels beats newer timestamp",
			local:    makeProfile("phone", 10, 0, 0),
			remote:   makeProfile("cloud", 2, 5000, 3600),
			wantSide: SideLocal,
			wantRule: RuleLevels,
		},
		{
			name:     "remote with more levels wins",
			local:    makeProfile("phone", 1, 0, 3600),
			remote:   makeProfile("cloud", 4, 0, 0),
			wantSide: SideRemote,
			wantRule: RuleLevels,
		},
		{
			name:     "equal levels, more coins wins",
			local:    makeProfile("phone", 3, 100, 50),
			remote:   makeProfile("cloud", 3, 300, 10),
			wantSide: SideRemote,
			wantRule: RuleCoins,
		},
		{
			name:     "equal levels and coins, newer wins",
			local:    makeProfile("phone", 3, 300, 50),
			remote:   makeProfile("cloud", 3, 300, 10),
			wantSide: SideLocal,
			wantRule: RuleLastModified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ExplainResolveConflict(tt.local, tt.remote)
			assert.Equal(t, tt.wantSide, d.Side)
			assert.Equal(t, tt.wantRule, d.Rule)

			swapped := ResolveConflict(tt.remote, tt.local)
			assert.True(t, swapped.Equal(d.Winner), "winner must not depend on argument order")
		})
	}
}

func TestPolicies_AreDistinct(t *testing.T) {
	moreProgress := makeProfile("watch", 8, 0, 0)
	newer := makeProfile("phone", 1, 0, 100)

	assert.True(t, LWW(moreProgress, newer).Equal(newer))
	assert.True(t, ResolveConflict(moreProgress, newer).Equal(moreProgress))
}
