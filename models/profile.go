package models

import (
	"time"

	"gorm.io/datatypes"
)

// GamificationProfile tracks gamified state for each user profile (denormalized for reads).
// Mutated only by the progression engine; never deleted, opt-out is the soft disable.
type GamificationProfile struct {
	ProfileID string `gorm:"primaryKey" json:"profile_id"` // links to the content platform profile

	// Core progression
	XPTotal       int64 `json:"xp_total" gorm:"not null;default:0;index"`
	Level         int   `json:"level" gorm:"not null;default:1"`
	PrestigeLevel int   `json:"prestige_level" gorm:"not null;default:0"`

	// Streaks
	CurrentStreak     int        `json:"current_streak" gorm:"not null;default:0"`
	LongestStreak     int        `json:"longest_streak" gorm:"not null;default:0"`
	LastActionAt      *time.Time `json:"last_action_at,omitempty"`
	StreakFrozenUntil *time.Time `json:"streak_frozen_until,omitempty"`

	OptedIn  bool              `json:"opted_in" gorm:"not null;default:false"`
	Settings datatypes.JSONMap `json:"settings,omitempty"`

	Timestamps
}

func (GamificationProfile) TableName() string {
	return "gamification_profiles"
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
