package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type ActionType string

const (
	ActionPostPublished         ActionType = "post.published"
	ActionPostUpdated           ActionType = "post.updated"
	ActionCommentApproved       ActionType = "comment.approved"
	ActionCommentSubmitted      ActionType = "comment.submitted"
	ActionCommentReceivedUpvote ActionType = "comment.received_upvote"
	ActionOnboardingCompleted   ActionType = "onboarding.completed"
	ActionAccountLoginStreak    ActionType = "account.login_streak"
	ActionChallengeCompleted    ActionType = "challenge.completed"
	ActionBadgeAwarded          ActionType = "badge.awarded"
	ActionManualAdjustment      ActionType = "custom.manual_adjustment"
)

// KnownActionTypes lists every action type the definition table carries.
var KnownActionTypes = []ActionType{
	ActionPostPublished,
	ActionPostUpdated,
	ActionCommentApproved,
	ActionCommentSubmitted,
	ActionCommentReceivedUpvote,
	ActionOnboardingCompleted,
	ActionAccountLoginStreak,
	ActionChallengeCompleted,
	ActionBadgeAwarded,
	ActionManualAdjustment,
}

func (a ActionType) Known() bool {
	for _, k := range KnownActionTypes {
		if a == k {
			return true
		}
	}
	return false
}

// Category is the prefix before the first dot ("post.published" -> "post").
func (a ActionType) Category() string {
	s := string(a)
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

// GamificationAction is an append-only ledger entry. Never updated or deleted.
type GamificationAction struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	ProfileID     string            `gorm:"not null;index:idx_actions_profile_type,priority:1;index:idx_actions_profile_request,priority:1" json:"profile_id"`
	ActionType    ActionType        `gorm:"type:varchar(64);not null;index:idx_actions_profile_type,priority:2" json:"action_type"`
	ActionSource  *string           `json:"action_source,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	XPAwarded     int64             `gorm:"not null;default:0" json:"xp_awarded"`
	PointsAwarded int64             `gorm:"not null;default:0" json:"points_awarded"`
	AwardedAt     time.Time         `gorm:"not null;index" json:"awarded_at"`
	RequestID     *string           `gorm:"index:idx_actions_profile_request,priority:2" json:"request_id,omitempty"`
}

func (GamificationAction) TableName() string {
	return "gamification_actions"
}
