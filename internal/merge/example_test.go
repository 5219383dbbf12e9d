package merge_test

import (
	"fmt"
	"time"

	"github.com/spellflare/spellsync/internal/merge"
	"github.com/spellflare/spellsync/internal/profile"
)

func record(device string, levels, coins int, at time.Time) profile.Syncable {
	p := profile.New("Ada", 1)
	for l := 1; l <= levels; l++ {
		p.CompleteLevel(l)
	}
	p.AwardCoins(coins)
	return profile.Wrap(p, device, false, at)
}

// The two policies disagree when the newer record has less progress.
func Example_policies() {
	morning := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	watch := record("watch", 5, 0, morning)
	phone := record("phone", 2, 0, morning.Add(time.Hour))

	lww := merge.ExplainLWW(phone, watch)
	fmt.Println("peer sync keeps", lww.Winner.DeviceIdentifier, "by", lww.Rule)

	backup := merge.ExplainResolveConflict(phone, watch)
	fmt.Println("backup keeps", backup.Winner.DeviceIdentifier, "by", backup.Rule)

	// Output:
	// peer sync keeps phone by lastModified
	// backup keeps watch by levels
}
