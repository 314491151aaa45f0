package models

import "time"

type Role struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Slug        string    `gorm:"uniqueIndex;not null" json:"slug"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Role) TableName() string {
	return "roles"
}

// ProfileRole is a membership row. Rows for roles outside the rule table are manual grants.
type ProfileRole struct {
	ProfileID string    `gorm:"primaryKey" json:"profile_id"`
	RoleID    string    `gorm:"primaryKey" json:"role_id"`
	GrantedAt time.Time `gorm:"not null" json:"granted_at"`
}

func (ProfileRole) TableName() string {
	return "profile_roles"
}

// RoleAssignmentRule grants RoleSlug when the profile reaches Level, or owns BadgeSlug.
// Exactly one of Level/BadgeSlug is set.
type RoleAssignmentRule struct {
	Level     int    `json:"level,omitempty"`
	BadgeSlug string `json:"badge_slug,omitempty"`
	RoleSlug  string `json:"role_slug"`
}
