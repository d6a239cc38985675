package policy

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Unreachable is returned by XPForLevel above the highest configured level.
const Unreachable int64 = math.MaxInt64

// LevelLedger is an ascending step function from cumulative XP to level.
// thresholds[i] is the XP needed to reach level i+1.
type LevelLedger struct {
	thresholds []int64
}

// DefaultLevelThresholds covers levels 1 through 10.
func DefaultLevelThresholds() []int64 {
	return []int64{0, 1000, 2500, 5000, 8000, 12000, 17000, 23000, 30000, 40000}
}

// NewLevelLedger validates thresholds: non-empty, starting at 0, strictly increasing.
func NewLevelLedger(thresholds []int64) (LevelLedger, error) {
	if len(thresholds) == 0 {
		return LevelLedger{}, errors.New("level thresholds must not be empty")
	}
	if thresholds[0] != 0 {
		return LevelLedger{}, fmt.Errorf("level 1 threshold must be 0, got %d", thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return LevelLedger{}, fmt.Errorf("level %d threshold %d is not above level %d threshold %d", i+1, thresholds[i], i, thresholds[i-1])
		}
	}
	return LevelLedger{thresholds: append([]int64(nil), thresholds...)}, nil
}

// MustLevelLedger panics on invalid thresholds. Intended for compiled-in tables.
func MustLevelLedger(thresholds []int64) LevelLedger {
	ledger, err := NewLevelLedger(thresholds)
	if err != nil {
		panic(err)
	}
	return ledger
}

// MaxLevel is the highest configured level.
func (l LevelLedger) MaxLevel() int {
	return len(l.thresholds)
}

// LevelForXP returns the highest level whose threshold is <= xp.
func (l LevelLedger) LevelForXP(xp int64) int {
	if len(l.thresholds) == 0 || xp <= 0 {
		return 1
	}
	// First index whose threshold exceeds xp; the level is that index.
	idx := sort.Search(len(l.thresholds), func(i int) bool { return l.thresholds[i] > xp })
	if idx == 0 {
		return 1
	}
	return idx
}

// XPForLevel returns the cumulative XP needed for level, or Unreachable above MaxLevel.
func (l LevelLedger) XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > len(l.thresholds) {
		return Unreachable
	}
	return l.thresholds[level-1]
}

// LevelProgress summarises where an XP total sits inside its level.
type LevelProgress struct {
	Level int
	// XPIntoLevel is the XP earned since reaching Level.
	XPIntoLevel int64
	// XPToNextLevel is the XP still needed for Level+1, or Unreachable at the top of the table.
	XPToNextLevel int64
}

// Progress reports the level position for xp.
func (l LevelLedger) Progress(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := l.LevelForXP(xp)
	next := l.XPForLevel(level + 1)
	progress := LevelProgress{Level: level, XPIntoLevel: xp - l.XPForLevel(level)}
	if next == Unreachable {
		progress.XPToNextLevel = Unreachable
	} else {
		progress.XPToNextLevel = next - xp
	}
	return progress
}
