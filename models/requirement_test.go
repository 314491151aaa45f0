package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Requirement
	}{
		{"total actions", `{"type":"total_actions","action_type":"post.published","threshold":5}`, TotalActions(ActionPostPublished, 5)},
		{"camel case keys", `{"kind":"total_actions","actionType":"comment.approved","count":"3"}`, TotalActions(ActionCommentApproved, 3)},
		{"level", `{"type":"level_reached","level":10}`, LevelReached(10)},
		{"streak", `{"type":"streak","days":7}`, StreakDays(7)},
		{"event", `{"type":"event","event_key":" onboarding.completed "}`, EventTrigger("onboarding.completed")},
		{"challenge", `{"type":"challenge_completed","challengeSlug":"weekly-commenter"}`, ChallengeCompleted("weekly-commenter")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRequirement([]byte(tt.raw))
			require.True(t, got.Valid(), got.Problem)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequirementRejectsBadShapes(t *testing.T) {
	bad := []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"type":"mystery"}`,
		`{"type":"total_actions","threshold":5}`,
		`{"type":"total_actions","action_type":"post.published","threshold":0}`,
		`{"type":"total_actions","action_type":"post.published","threshold":2.5}`,
		`{"type":"level_reached","level":-1}`,
		`{"type":"streak"}`,
		`{"type":"event","event_key":""}`,
		`{"type":"challenge_completed"}`,
	}
	for _, raw := range bad {
		got := ParseRequirement([]byte(raw))
		assert.Equal(t, RequirementUnparseable, got.Kind, "raw=%q", raw)
		assert.False(t, got.Valid())
		assert.NotEmpty(t, got.Problem)
	}
}

func TestMarshalRequirementRoundTrip(t *testing.T) {
	for _, seed := range DefaultBadges {
		raw, err := MarshalRequirement(seed.Requirement)
		require.NoError(t, err, seed.Name)
		assert.Equal(t, seed.Requirement, ParseRequirement(raw), seed.Name)
	}

	_, err := MarshalRequirement(Requirement{Kind: RequirementUnparseable})
	assert.Error(t, err)
}

func TestRequirementTarget(t *testing.T) {
	assert.Equal(t, int64(3), TotalActions(ActionCommentApproved, 3).Target())
	assert.Equal(t, int64(5), StreakDays(5).Target())
	assert.Equal(t, int64(4), LevelReached(4).Target())
	assert.Zero(t, EventTrigger("x").Target())
}

func TestBadgeAvailableAt(t *testing.T) {
	from := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)

	always := Badge{}
	assert.True(t, always.AvailableAt(from.Add(-time.Hour)))

	seasonal := Badge{IsTimeLimited: true, AvailableFrom: &from, AvailableTo: &to}
	assert.False(t, seasonal.AvailableAt(from.Add(-time.Second)))
	assert.True(t, seasonal.AvailableAt(from))
	assert.True(t, seasonal.AvailableAt(to))
	assert.False(t, seasonal.AvailableAt(to.Add(time.Second)))

	openEnded := Badge{IsTimeLimited: true, AvailableFrom: &from}
	assert.True(t, openEnded.AvailableAt(to.AddDate(5, 0, 0)))
}

func TestActionTypeCategory(t *testing.T) {
	assert.Equal(t, "post", ActionPostPublished.Category())
	assert.Equal(t, "comment", ActionCommentReceivedUpvote.Category())
	assert.True(t, ActionBadgeAwarded.Known())
	assert.False(t, ActionType("post.shared").Known())
}
