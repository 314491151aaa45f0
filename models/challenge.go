package models

import (
	"time"

	"gorm.io/datatypes"
)

type ChallengeCadence string

const (
	CadenceDaily    ChallengeCadence = "daily"
	CadenceWeekly   ChallengeCadence = "weekly"
	CadenceMonthly  ChallengeCadence = "monthly"
	CadenceSeasonal ChallengeCadence = "seasonal"
	CadenceEvent    ChallengeCadence = "event"
)

type ChallengeStatus string

const (
	ChallengeStatusActive    ChallengeStatus = "active"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusExpired   ChallengeStatus = "expired"
)

type Challenge struct {
	ID            string           `gorm:"primaryKey" json:"id"`
	Slug          string           `gorm:"uniqueIndex;not null" json:"slug"`
	Title         string           `gorm:"not null" json:"title"`
	Description   string           `json:"description"`
	Cadence       ChallengeCadence `gorm:"type:varchar(16);not null" json:"cadence"`
	Requirements  datatypes.JSON   `json:"requirements"` // total_actions | streak | level_reached
	RewardPoints  int64            `gorm:"not null;default:0" json:"reward_points"`
	RewardBadgeID *string          `json:"reward_badge_id,omitempty"`
	StartsAt      time.Time        `gorm:"not null;index" json:"starts_at"`
	EndsAt        time.Time        `gorm:"not null;index" json:"ends_at"`
	IsActive      bool             `gorm:"not null;index" json:"is_active"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (Challenge) TableName() string {
	return "gamification_challenges"
}

func (c Challenge) Requirement() Requirement {
	return ParseRequirement(c.Requirements)
}

// ChallengeProgress: one row per (profile, challenge). active -> completed is one-way.
type ChallengeProgress struct {
	ProfileID   string            `gorm:"primaryKey" json:"profile_id"`
	ChallengeID string            `gorm:"primaryKey" json:"challenge_id"`
	Status      ChallengeStatus   `gorm:"type:varchar(16);not null;index" json:"status"`
	Progress    datatypes.JSONMap `json:"progress"` // at least {"value": n, "target": n}
	StartedAt   time.Time         `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChallengeProgress) TableName() string {
	return "profile_challenge_progress"
}
