package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type RequirementKind string

const (
	RequirementTotalActions       RequirementKind = "total_actions"
	RequirementLevelReached       RequirementKind = "level_reached"
	RequirementStreak             RequirementKind = "streak"
	RequirementEvent              RequirementKind = "event"
	RequirementChallengeCompleted RequirementKind = "challenge_completed"

	// RequirementUnparseable marks a stored shape that failed validation. Never satisfiable.
	RequirementUnparseable RequirementKind = "unparseable"
)

// Requirement is the parsed form of the badge/challenge `requirements` column.
// Only the fields of Kind are meaningful.
type Requirement struct {
	Kind RequirementKind

	ActionType    ActionType // total_actions
	Threshold     int64      // total_actions
	Level         int        // level_reached
	Days          int        // streak
	EventKey      string     // event
	ChallengeSlug string     // challenge_completed

	// Problem explains why parsing failed (unparseable only).
	Problem string
}

func (r Requirement) Valid() bool {
	return r.Kind != RequirementUnparseable
}

// Target is the numeric goal used for progress reporting. Zero for event/challenge kinds.
func (r Requirement) Target() int64 {
	switch r.Kind {
	case RequirementTotalActions:
		return r.Threshold
	case RequirementLevelReached:
		return int64(r.Level)
	case RequirementStreak:
		return int64(r.Days)
	}
	return 0
}

func TotalActions(action ActionType, threshold int64) Requirement {
	return Requirement{Kind: RequirementTotalActions, ActionType: action, Threshold: threshold}
}

func LevelReached(level int) Requirement {
	return Requirement{Kind: RequirementLevelReached, Level: level}
}

func StreakDays(days int) Requirement {
	return Requirement{Kind: RequirementStreak, Days: days}
}

func EventTrigger(key string) Requirement {
	return Requirement{Kind: RequirementEvent, EventKey: key}
}

func ChallengeCompleted(slug string) Requirement {
	return Requirement{Kind: RequirementChallengeCompleted, ChallengeSlug: slug}
}

func unparseable(format string, args ...interface{}) Requirement {
	return Requirement{Kind: RequirementUnparseable, Problem: fmt.Sprintf(format, args...)}
}

// ParseRequirement validates a raw JSON requirement. It never fails: invalid shapes come back
// as RequirementUnparseable with Problem set.
//
// Accepted shapes (camelCase keys are accepted as aliases):
//
//	{"type":"total_actions","action_type":"post.published","threshold":5}
//	{"type":"level_reached","level":10}
//	{"type":"streak","days":7}
//	{"type":"event","event_key":"onboarding.completed"}
//	{"type":"challenge_completed","challenge_slug":"weekly-commenter"}
func ParseRequirement(raw []byte) Requirement {
	if len(raw) == 0 {
		return unparseable("empty requirement")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return unparseable("invalid json: %v", err)
	}

	kind, _ := pick(fields, "type", "kind").(string)
	switch RequirementKind(strings.TrimSpace(kind)) {
	case RequirementTotalActions:
		action, _ := pick(fields, "action_type", "actionType").(string)
		threshold, ok := positiveInt(pick(fields, "threshold", "count"))
		if strings.TrimSpace(action) == "" || !ok {
			return unparseable("total_actions needs action_type and a positive threshold")
		}
		return TotalActions(ActionType(strings.TrimSpace(action)), threshold)
	case RequirementLevelReached:
		level, ok := positiveInt(pick(fields, "level"))
		if !ok {
			return unparseable("level_reached needs a positive level")
		}
		return LevelReached(int(level))
	case RequirementStreak:
		days, ok := positiveInt(pick(fields, "days"))
		if !ok {
			return unparseable("streak needs positive days")
		}
		return StreakDays(int(days))
	case RequirementEvent:
		key, _ := pick(fields, "event_key", "eventKey").(string)
		if strings.TrimSpace(key) == "" {
			return unparseable("event needs event_key")
		}
		return EventTrigger(strings.TrimSpace(key))
	case RequirementChallengeCompleted:
		s, _ := pick(fields, "challenge_slug", "challengeSlug").(string)
		if strings.TrimSpace(s) == "" {
			return unparseable("challenge_completed needs challenge_slug")
		}
		return ChallengeCompleted(strings.TrimSpace(s))
	case "":
		return unparseable("missing type")
	default:
		return unparseable("unknown type %q", kind)
	}
}

// MarshalRequirement is the inverse of ParseRequirement for valid requirements.
func MarshalRequirement(r Requirement) ([]byte, error) {
	m := map[string]interface{}{"type": string(r.Kind)}
	switch r.Kind {
	case RequirementTotalActions:
		m["action_type"] = string(r.ActionType)
		m["threshold"] = r.Threshold
	case RequirementLevelReached:
		m["level"] = r.Level
	case RequirementStreak:
		m["days"] = r.Days
	case RequirementEvent:
		m["event_key"] = r.EventKey
	case RequirementChallengeCompleted:
		m["challenge_slug"] = r.ChallengeSlug
	default:
		return nil, fmt.Errorf("cannot marshal %s requirement", r.Kind)
	}
	return json.Marshal(m)
}

func pick(fields map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v
		}
	}
	return nil
}

func positiveInt(v interface{}) (int64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int64(f), true
}
