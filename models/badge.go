package models

import (
	"time"

	"gorm.io/datatypes"
)

type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "common"
	RarityUncommon  BadgeRarity = "uncommon"
	RarityRare      BadgeRarity = "rare"
	RarityLegendary BadgeRarity = "legendary"
)

type OwnedBadgeState string

const (
	BadgeStateAwarded   OwnedBadgeState = "awarded"
	BadgeStateRevoked   OwnedBadgeState = "revoked"
	BadgeStateSuspended OwnedBadgeState = "suspended"
)

// Badge: catalog entry, edited by admins only
type Badge struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	Slug          string         `gorm:"uniqueIndex;not null" json:"slug"` // e.g., "first-post", "week-warrior"
	Name          string         `gorm:"not null" json:"name"`
	Description   string         `json:"description"`
	Category      string         `gorm:"type:varchar(32)" json:"category"`
	IconURL       string         `gorm:"type:text" json:"icon_url,omitempty"`
	Rarity        BadgeRarity    `gorm:"type:varchar(16);default:'common'" json:"rarity"`
	Requirements  datatypes.JSON `json:"requirements"` // tagged union, see ParseRequirement
	IsTimeLimited bool           `gorm:"not null;default:false" json:"is_time_limited"`
	AvailableFrom *time.Time     `json:"available_from,omitempty"`
	AvailableTo   *time.Time     `json:"available_to,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (Badge) TableName() string {
	return "gamification_badges"
}

func (b Badge) Requirement() Requirement {
	return ParseRequirement(b.Requirements)
}

// AvailableAt reports whether the badge can be earned at now. Either window bound may be open.
func (b Badge) AvailableAt(now time.Time) bool {
	if !b.IsTimeLimited {
		return true
	}
	if b.AvailableFrom != nil && now.Before(*b.AvailableFrom) {
		return false
	}
	if b.AvailableTo != nil && now.After(*b.AvailableTo) {
		return false
	}
	return true
}

// OwnedBadge: awarded instance, one row per (profile, badge)
type OwnedBadge struct {
	ProfileID  string          `gorm:"primaryKey" json:"profile_id"`
	BadgeID    string          `gorm:"primaryKey" json:"badge_id"`
	AwardedAt  time.Time       `gorm:"not null" json:"awarded_at"`
	State      OwnedBadgeState `gorm:"type:varchar(16);not null;default:'awarded'" json:"state"`
	NotifiedAt *time.Time      `json:"notified_at,omitempty"`
}

func (OwnedBadge) TableName() string {
	return "profile_badges"
}
