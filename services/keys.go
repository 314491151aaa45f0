package services

import (
	"fmt"

	"sips-gamification/models"
)

func cooldownKey(profileID string, action models.ActionType) string {
	return fmt.Sprintf("gamification:cooldown:%s:%s", profileID, action)
}

func profileCacheKey(profileID string) string {
	return fmt.Sprintf("gamification:profile:%s", profileID)
}

func leaderboardCacheKey(scope models.LeaderboardScope, category string) string {
	return fmt.Sprintf("gamification:leaderboard:%s:%s", scope, category)
}

// leaderboardKeysFor lists every cached ranking an action of this type can move.
func leaderboardKeysFor(action models.ActionType) []string {
	scopes := []models.LeaderboardScope{models.ScopeGlobal, models.ScopeWeekly, models.ScopeMonthly}
	keys := make([]string, 0, len(scopes)*2)
	for _, scope := range scopes {
		keys = append(keys, leaderboardCacheKey(scope, ""), leaderboardCacheKey(scope, action.Category()))
	}
	return keys
}
