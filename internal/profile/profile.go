package profile

import (
	"fmt"
	"strings"
)

const (
	// MinGrade and MaxGrade bound Profile.Grade.
	MinGrade = 1
	MaxGrade = 7

	// MinLevel and MaxLevel bound level numbers within a grade.
	MinLevel = 1
	MaxLevel = 50

	// RetroactiveCoinsPerLevel is the one-time grant per completed level
	// for profiles created before coins existed.
	RetroactiveCoinsPerLevel = 100

	// DefaultName is used for standalone companion profiles.
	DefaultName = "Player"
)

// Profile is the user-visible progress record.
type Profile struct {
	Name  string `json:"name"`
	Grade int    `json:"grade"` // 1-7

	// Completed levels per grade: grade -> set of levels
	CompletedLevelsByGrade map[int]LevelSet `json:"completedLevelsByGrade"`
	CurrentLevelByGrade    map[int]int      `json:"currentLevelByGrade"`

	TotalCoins              int  `json:"totalCoins"`
	CoinsMigrationCompleted bool `json:"coinsMigrationCompleted"`
}

// New creates a profile for onboarding with every grade initialised to
// level 1 and no completed levels. New profiles never need the retroactive
// coin grant, so CoinsMigrationCompleted starts out true.
func New(name string, grade int) Profile {
	p := Profile{
		Name:                    strings.TrimSpace(name),
		Grade:                   ClampGrade(grade),
		CompletedLevelsByGrade:  make(map[int]LevelSet, MaxGrade),
		CurrentLevelByGrade:     make(map[int]int, MaxGrade),
		CoinsMigrationCompleted: true,
	}
	p.Normalize()
	return p
}

// ClampGrade forces g into [MinGrade, MaxGrade].
func ClampGrade(g int) int {
	return clamp(g, MinGrade, MaxGrade)
}

// ClampLevel forces l into [MinLevel, MaxLevel].
func ClampLevel(l int) int {
	return clamp(l, MinLevel, MaxLevel)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize repairs invariant violations in place: the grade is clamped,
// every grade 1..7 gets an entry in both maps, out-of-range levels are
// dropped from completion sets, current levels are clamped, and a negative
// coin balance becomes zero. Grades outside 1..7 are discarded.
func (p *Profile) Normalize() {
	p.Grade = ClampGrade(p.Grade)
	if p.TotalCoins < 0 {
		p.TotalCoins = 0
	}

	completed := make(map[int]LevelSet, MaxGrade)
	current := make(map[int]int, MaxGrade)
	for g := MinGrade; g <= MaxGrade; g++ {
		set := make(LevelSet)
		for l := range p.CompletedLevelsByGrade[g] {
			if l >= MinLevel && l <= MaxLevel {
				set.Add(l)
			}
		}
		completed[g] = set

		cur, ok := p.CurrentLevelByGrade[g]
		if !ok {
			cur = MinLevel
		}
		current[g] = ClampLevel(cur)
	}
	p.CompletedLevelsByGrade = completed
	p.CurrentLevelByGrade = current
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := p
	out.CompletedLevelsByGrade = make(map[int]LevelSet, len(p.CompletedLevelsByGrade))
	for g, set := range p.CompletedLevelsByGrade {
		out.CompletedLevelsByGrade[g] = set.Clone()
	}
	out.CurrentLevelByGrade = make(map[int]int, len(p.CurrentLevelByGrade))
	for g, l := range p.CurrentLevelByGrade {
		out.CurrentLevelByGrade[g] = l
	}
	return out
}

// Equal reports whether two profiles hold the same data. A missing grade
// entry and an empty one compare equal.
func (p Profile) Equal(o Profile) bool {
	if p.Name != o.Name || p.Grade != o.Grade ||
		p.TotalCoins != o.TotalCoins || p.CoinsMigrationCompleted != o.CoinsMigrationCompleted {
		return false
	}
	for g := MinGrade; g <= MaxGrade; g++ {
		if !p.CompletedLevelsByGrade[g].Equal(o.CompletedLevelsByGrade[g]) {
			return false
		}
		if p.currentLevelFor(g) != o.currentLevelFor(g) {
			return false
		}
	}
	return true
}

func (p Profile) currentLevelFor(g int) int {
	if l, ok := p.CurrentLevelByGrade[g]; ok {
		return l
	}
	return MinLevel
}

// TotalCompletedLevels counts completed levels across all grades.
func (p Profile) TotalCompletedLevels() int {
	total := 0
	for _, set := range p.CompletedLevelsByGrade {
		total += set.Len()
	}
	return total
}

// CompletedLevels returns the completed levels for the active grade.
func (p Profile) CompletedLevels() LevelSet {
	if set, ok := p.CompletedLevelsByGrade[p.Grade]; ok {
		return set
	}
	return LevelSet{}
}

// CurrentLevel returns the current level for the active grade.
func (p Profile) CurrentLevel() int {
	return p.currentLevelFor(p.Grade)
}

// CompleteLevel marks level as completed for the active grade and advances
// the current level to max(current, level+1), capped at MaxLevel. The
// current level never decreases. Returns the (clamped) level recorded.
func (p *Profile) CompleteLevel(level int) int {
	level = ClampLevel(level)
	if p.CompletedLevelsByGrade == nil {
		p.CompletedLevelsByGrade = make(map[int]LevelSet, MaxGrade)
	}
	if p.CurrentLevelByGrade == nil {
		p.CurrentLevelByGrade = make(map[int]int, MaxGrade)
	}

	set, ok := p.CompletedLevelsByGrade[p.Grade]
	if !ok {
		set = make(LevelSet)
		p.CompletedLevelsByGrade[p.Grade] = set
	}
	set.Add(level)

	current := p.currentLevelFor(p.Grade)
	if next := ClampLevel(level + 1); level >= current && next > current {
		current = next
	}
	p.CurrentLevelByGrade[p.Grade] = current
	return level
}

// SetGrade switches the active grade, clamping to [MinGrade, MaxGrade].
func (p *Profile) SetGrade(grade int) {
	p.Grade = ClampGrade(grade)
}

// Rename changes the display name. Blank names are ignored.
func (p *Profile) Rename(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == p.Name {
		return false
	}
	p.Name = name
	return true
}

// AwardCoins adds amount to the balance. Non-positive amounts are ignored.
func (p *Profile) AwardCoins(amount int) {
	if amount <= 0 {
		return
	}
	p.TotalCoins += amount
}

// GrantRetroactiveCoins runs the one-time coin grant for profiles that
// predate coins: RetroactiveCoinsPerLevel per completed level across all
// grades. Guarded by CoinsMigrationCompleted, so repeated calls are no-ops.
// Returns the number of coins granted.
func (p *Profile) GrantRetroactiveCoins() (granted int, applied bool) {
	if p.CoinsMigrationCompleted {
		return 0, false
	}
	granted = p.TotalCompletedLevels() * RetroactiveCoinsPerLevel
	p.TotalCoins += granted
	p.CoinsMigrationCompleted = true
	return granted, true
}

// IsLevelUnlocked reports whether level is playable in the active grade.
func (p Profile) IsLevelUnlocked(level int) bool {
	return level <= p.CurrentLevel() || p.CompletedLevels().Contains(level)
}

// IsLevelCompleted reports whether level was completed in the active grade.
func (p Profile) IsLevelCompleted(level int) bool {
	return p.CompletedLevels().Contains(level)
}

// CalculateCoins returns the reward for finishing a level:
// 100 for a perfect run, 70 for one or two mistakes, 50 otherwise.
func CalculateCoins(wrongAttempts int) int {
	switch {
	case wrongAttempts <= 0:
		return 100
	case wrongAttempts <= 2:
		return 70
	default:
		return 50
	}
}

// Validate checks the invariants a normalized profile must satisfy.
func (p Profile) Validate() error {
	if p.Grade < MinGrade || p.Grade > MaxGrade {
		return fmt.Errorf("grade must be between %d and %d (got %d)", MinGrade, MaxGrade, p.Grade)
	}
	if p.TotalCoins < 0 {
		return fmt.Errorf("totalCoins must not be negative (got %d)", p.TotalCoins)
	}
	for g := MinGrade; g <= MaxGrade; g++ {
		cur, ok := p.CurrentLevelByGrade[g]
		if !ok {
			return fmt.Errorf("currentLevelByGrade is missing grade %d", g)
		}
		if cur < MinLevel || cur > MaxLevel {
			return fmt.Errorf("current level for grade %d out of range (got %d)", g, cur)
		}
		if _, ok := p.CompletedLevelsByGrade[g]; !ok {
			return fmt.Errorf("completedLevelsByGrade is missing grade %d", g)
		}
		for l := range p.CompletedLevelsByGrade[g] {
			if l < MinLevel || l > MaxLevel {
				return fmt.Errorf("completed level %d for grade %d out of range", l, g)
			}
		}
	}
	return nil
}
