package models

import (
	"time"

	"gorm.io/datatypes"
)

type LeaderboardScope string

const (
	ScopeGlobal  LeaderboardScope = "global"
	ScopeWeekly  LeaderboardScope = "weekly"
	ScopeMonthly LeaderboardScope = "monthly"
)

func (s LeaderboardScope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeWeekly, ScopeMonthly:
		return true
	}
	return false
}

// LeaderboardSnapshot is a point-in-time materialization of a ranking.
type LeaderboardSnapshot struct {
	ID         string           `gorm:"primaryKey" json:"id"`
	Scope      LeaderboardScope `gorm:"type:varchar(16);not null;index:idx_snapshots_scope,priority:1" json:"scope"`
	Category   string           `gorm:"type:varchar(32);not null;default:'';index:idx_snapshots_scope,priority:2" json:"category"`
	CapturedAt time.Time        `gorm:"not null;index:idx_snapshots_scope,priority:3" json:"captured_at"`
	ExpiresAt  time.Time        `gorm:"not null" json:"expires_at"`
	Payload    datatypes.JSON   `json:"payload"` // []LeaderboardEntry
}

func (LeaderboardSnapshot) TableName() string {
	return "leaderboard_snapshots"
}

// LeaderboardEntry is one ranked row of a leaderboard payload.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ProfileID     string `json:"profile_id"`
	XP            int64  `json:"xp"`
	Level         int    `json:"level"`
	CurrentStreak int    `json:"current_streak"`
}
