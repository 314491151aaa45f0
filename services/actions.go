package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"sips-gamification/models"
)

// ActionDefinition is the static award policy for one action type.
type ActionDefinition struct {
	BaseXP              int64
	BasePoints          int64
	Cooldown            time.Duration // zero = none
	MaxDailyOccurrences int           // zero = unlimited
}

// DefaultActionDefinitions: XP/points per action (tunable per deployment)
var DefaultActionDefinitions = map[models.ActionType]ActionDefinition{
	models.ActionPostPublished:         {BaseXP: 120, BasePoints: 50},
	models.ActionPostUpdated:           {BaseXP: 10, BasePoints: 2, Cooldown: 10 * time.Minute, MaxDailyOccurrences: 5},
	models.ActionCommentApproved:       {BaseXP: 25, BasePoints: 10},
	models.ActionCommentSubmitted:      {BaseXP: 5, BasePoints: 1, Cooldown: time.Minute, MaxDailyOccurrences: 20},
	models.ActionCommentReceivedUpvote: {BaseXP: 2, BasePoints: 1, MaxDailyOccurrences: 50},
	models.ActionOnboardingCompleted:   {BaseXP: 100, BasePoints: 25, MaxDailyOccurrences: 1},
	models.ActionAccountLoginStreak:    {BaseXP: 15, BasePoints: 5, Cooldown: 20 * time.Hour, MaxDailyOccurrences: 1},
	models.ActionChallengeCompleted:    {BaseXP: 50, BasePoints: 20},
	models.ActionBadgeAwarded:          {BaseXP: 0, BasePoints: 0},
	models.ActionManualAdjustment:      {},
}

// definitionFor falls back to the zero-value manual adjustment for unknown types.
func definitionFor(table map[models.ActionType]ActionDefinition, action models.ActionType) (models.ActionType, ActionDefinition) {
	if def, ok := table[action]; ok {
		return action, def
	}
	return models.ActionManualAdjustment, table[models.ActionManualAdjustment]
}

// MaxAwardOverride bounds metadata.xp / metadata.points in either direction.
const MaxAwardOverride int64 = 1_000_000

// metadataInt reads a numeric override (metadata.xp / metadata.points). Non-numeric values and
// values beyond MaxAwardOverride are ignored.
func metadataInt(metadata map[string]interface{}, key string) (int64, bool) {
	if metadata == nil {
		return 0, false
	}
	var f float64
	switch v := metadata[key].(type) {
	case int:
		return boundedOverride(int64(v))
	case int64:
		return boundedOverride(v)
	case int32:
		return boundedOverride(int64(v))
	case float64:
		f = v
	case float32:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > float64(MaxAwardOverride) {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func boundedOverride(v int64) (int64, bool) {
	if v > MaxAwardOverride || v < -MaxAwardOverride {
		return 0, false
	}
	return v, true
}

// addXP saturates at math.MaxInt64 and floors at zero.
func addXP(total, delta int64) int64 {
	if delta > 0 && total > math.MaxInt64-delta {
		return math.MaxInt64
	}
	if sum := total + delta; sum > 0 {
		return sum
	}
	return 0
}
