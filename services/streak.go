package services

import "time"

// StreakTolerance is the largest gap between actions that still continues a daily streak.
// A 30h gap continues, a 35h gap resets.
const StreakTolerance = 32 * time.Hour

type StreakInput struct {
	LastActionAt  *time.Time
	ActionAt      time.Time
	CurrentStreak int
	LongestStreak int
	FrozenUntil   *time.Time
}

type StreakResult struct {
	CurrentStreak int
	LongestStreak int
	Maintained    bool
	// FreezeUsed is set when a gap past tolerance was bridged by an active freeze.
	FreezeUsed bool
}

// CalculateStreak decides whether the daily streak continues, resets or is untouched.
//   - no previous action: streak 1
//   - same UTC day as the previous action: untouched
//   - gap <= StreakTolerance: +1
//   - gap > StreakTolerance: reset to 1, unless a freeze covers the new action
func CalculateStreak(in StreakInput) StreakResult {
	current := in.CurrentStreak
	longest := in.LongestStreak

	if in.LastActionAt == nil {
		return StreakResult{CurrentStreak: 1, LongestStreak: max(1, longest), Maintained: true}
	}
	last := *in.LastActionAt
	if last.IsZero() || in.ActionAt.IsZero() {
		return reset(current, longest)
	}

	if sameUTCDay(last, in.ActionAt) || in.ActionAt.Before(last) {
		current = max(1, current)
		return StreakResult{CurrentStreak: current, LongestStreak: max(longest, current), Maintained: true}
	}

	if in.ActionAt.Sub(last) <= StreakTolerance {
		current++
		return StreakResult{CurrentStreak: current, LongestStreak: max(longest, current), Maintained: true}
	}

	if in.FrozenUntil != nil && !in.ActionAt.After(*in.FrozenUntil) {
		current++
		return StreakResult{
			CurrentStreak: current,
			LongestStreak: max(longest, current),
			Maintained:    true,
			FreezeUsed:    true,
		}
	}

	return reset(current, longest)
}

func reset(current, longest int) StreakResult {
	return StreakResult{CurrentStreak: 1, LongestStreak: max(longest, current, 1), Maintained: false}
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
