package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"sips-gamification/metrics"
	"sips-gamification/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordActionEndToEndPostPublished(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "author-1")

	res := e.record(t, "author-1", models.ActionPostPublished)

	require.True(t, res.Applied)
	assert.Equal(t, int64(120), res.XPAwarded)
	assert.Equal(t, int64(50), res.PointsAwarded)
	assert.Equal(t, int64(120), res.Profile.XPTotal)
	assert.Equal(t, 2, res.Profile.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.Profile.CurrentStreak)
	assert.Equal(t, 1, res.Profile.LongestStreak)
	assert.Contains(t, badgeSlugs(res.NewlyEarnedBadges), "first-pour")

	var stored models.GamificationProfile
	require.NoError(t, e.DB.Where("profile_id = ?", "author-1").First(&stored).Error)
	assert.Equal(t, int64(120), stored.XPTotal)
	assert.Equal(t, 2, stored.Level)
	require.NotNil(t, stored.LastActionAt)
	assert.True(t, stored.LastActionAt.Equal(testEpoch))

	var owned int64
	require.NoError(t, e.DB.Model(&models.OwnedBadge{}).Where("profile_id = ?", "author-1").Count(&owned).Error)
	assert.Equal(t, int64(1), owned)
}

func TestRecordActionOptOutShortCircuit(t *testing.T) {
	e := newTestEngine(t)

	res := e.record(t, "lurker", models.ActionPostPublished)
	assert.False(t, res.Applied)
	assert.Equal(t, RejectOptedOut, res.Reason)
	assert.Zero(t, res.XPAwarded)
	assert.Zero(t, e.ledgerCount(t, "lurker"))

	manual, err := e.Progression.RecordAction(context.Background(), RecordActionInput{
		ProfileID:  "lurker",
		ActionType: models.ActionManualAdjustment,
		Metadata:   map[string]interface{}{"xp": 40},
	})
	require.NoError(t, err)
	assert.True(t, manual.Applied)
	assert.Equal(t, int64(40), manual.Profile.XPTotal)
	assert.Equal(t, int64(1), e.ledgerCount(t, "lurker"))
}

func TestRecordActionUnknownTypeCannotBypassOptOut(t *testing.T) {
	e := newTestEngine(t)

	res := e.record(t, "lurker", models.ActionType("made.up"))
	assert.False(t, res.Applied)
	assert.Equal(t, RejectOptedOut, res.Reason)
}

func TestRecordActionUnknownTypeFallsBackToManualAdjustment(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "p1")

	res := e.record(t, "p1", models.ActionType("post.shared"))
	require.True(t, res.Applied)
	assert.Zero(t, res.XPAwarded)

	var row models.GamificationAction
	require.NoError(t, e.DB.Where("profile_id = ?", "p1").First(&row).Error)
	assert.Equal(t, models.ActionManualAdjustment, row.ActionType)
	assert.Equal(t, "post.shared", row.Metadata["requested_action_type"])
}

func TestRecordActionCooldown(t *testing.T) {
	e := newTestEngine(t)
	e.Progression.Actions["test.ping"] = ActionDefinition{BaseXP: 5, Cooldown: 60 * time.Second}
	e.optIn(t, "p1")

	first := e.record(t, "p1", "test.ping")
	require.True(t, first.Applied)

	e.Clock.Advance(30 * time.Second)
	second := e.record(t, "p1", "test.ping")
	assert.False(t, second.Applied)
	assert.Equal(t, RejectCooldown, second.Reason)
	assert.Equal(t, int64(5), second.Profile.XPTotal, "profile returned unchanged")

	e.Clock.Advance(31 * time.Second)
	third := e.record(t, "p1", "test.ping")
	assert.True(t, third.Applied)
	assert.Equal(t, int64(2), e.ledgerCount(t, "p1"))
}

func TestRecordActionDailyCap(t *testing.T) {
	e := newTestEngine(t)
	e.Progression.Actions["test.capped"] = ActionDefinition{BaseXP: 1, MaxDailyOccurrences: 5}
	e.optIn(t, "p1")

	for i := 0; i < 5; i++ {
		res := e.record(t, "p1", "test.capped")
		require.True(t, res.Applied, "call %d", i+1)
		e.Clock.Advance(time.Minute)
	}
	sixth := e.record(t, "p1", "test.capped")
	assert.False(t, sixth.Applied)
	assert.Equal(t, RejectDailyCap, sixth.Reason)

	// next UTC day resets the counter
	e.Clock.Advance(24 * time.Hour)
	next := e.record(t, "p1", "test.capped")
	assert.True(t, next.Applied)
}

func TestRecordActionDuplicateRequestID(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "p1")
	reqID := "req-42"

	in := RecordActionInput{ProfileID: "p1", ActionType: models.ActionCommentApproved, RequestID: &reqID}
	first, err := e.Progression.RecordAction(context.Background(), in)
	require.NoError(t, err)
	require.True(t, first.Applied)

	again, err := e.Progression.RecordAction(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, RejectDuplicateRequest, again.Reason)
	assert.Equal(t, int64(1), e.ledgerCount(t, "p1"))
}

func TestRecordActionMetadataOverridesAndClampsXP(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "p1")
	e.record(t, "p1", models.ActionCommentApproved)

	res, err := e.Progression.RecordAction(context.Background(), RecordActionInput{
		ProfileID:  "p1",
		ActionType: models.ActionManualAdjustment,
		Metadata:   map[string]interface{}{"xp": -500, "points": "3"},
	})
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Equal(t, int64(-25), res.XPAwarded, "only the XP the profile had is taken")
	assert.Equal(t, int64(3), res.PointsAwarded)
	assert.Equal(t, int64(0), res.Profile.XPTotal)
	assert.Equal(t, 1, res.Profile.Level)

	var ledgerXP int64
	require.NoError(t, e.DB.Model(&models.GamificationAction{}).
		Where("profile_id = ?", "p1").
		Select("COALESCE(SUM(xp_awarded), 0)").
		Scan(&ledgerXP).Error)
	assert.Equal(t, res.Profile.XPTotal, ledgerXP)
}

func TestRecordActionIgnoresOutOfRangeOverrides(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "p1")

	tests := []struct {
		name   string
		action models.ActionType
		xp     interface{}
		wantXP int64
	}{
		{"huge float on post", models.ActionPostPublished, 1e30, 120},
		{"near max int on manual", models.ActionManualAdjustment, 9.2e18, 0},
		{"huge int64 on manual", models.ActionManualAdjustment, int64(math.MaxInt64), 0},
		{"huge negative string", models.ActionManualAdjustment, "-1e19", 0},
		{"at the bound", models.ActionManualAdjustment, MaxAwardOverride, MaxAwardOverride},
	}
	total := int64(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Progression.RecordAction(context.Background(), RecordActionInput{
				ProfileID:  "p1",
				ActionType: tt.action,
				Metadata:   map[string]interface{}{"xp": tt.xp},
			})
			require.NoError(t, err)
			require.True(t, res.Applied)
			assert.Equal(t, tt.wantXP, res.XPAwarded)
			total += tt.wantXP
			assert.Equal(t, total, res.Profile.XPTotal)
		})
	}
}

func TestRecordActionSaturatesXPTotal(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.DB.Create(&models.GamificationProfile{
		ProfileID: "whale", XPTotal: math.MaxInt64 - 10, Level: 1, OptedIn: true,
	}).Error)

	done := make(chan *RecordActionResult, 1)
	go func() {
		res, err := e.Progression.RecordAction(context.Background(), RecordActionInput{
			ProfileID:  "whale",
			ActionType: models.ActionManualAdjustment,
			Metadata:   map[string]interface{}{"xp": 1000},
		})
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, int64(10), res.XPAwarded)
		assert.Equal(t, int64(math.MaxInt64), res.Profile.XPTotal)
		assert.Greater(t, res.Profile.Level, 10)
	case <-time.After(10 * time.Second):
		t.Fatal("recording an action near the XP ceiling did not return")
	}
}

func TestRecordActionMetricLabelsUnknownTypes(t *testing.T) {
	e := newTestEngine(t)
	unknown := metrics.ActionsTotal.WithLabelValues("unknown", string(RejectOptedOut))
	before := testutil.ToFloat64(unknown)

	e.record(t, "lurker", models.ActionType("made.up.type"))
	e.record(t, "lurker", models.ActionType("another.made.up"))

	assert.Equal(t, before+2, testutil.ToFloat64(unknown))
	assert.Equal(t, "post.published", actionLabel(models.ActionPostPublished))
	assert.Equal(t, "unknown", actionLabel("made.up.type"))
}

func TestRecordActionStreakAcrossDays(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "p1")

	e.record(t, "p1", models.ActionCommentApproved)
	e.Clock.Advance(2 * time.Hour)
	sameDay := e.record(t, "p1", models.ActionCommentApproved)
	assert.Equal(t, 1, sameDay.Profile.CurrentStreak)

	e.Clock.Advance(22 * time.Hour)
	nextDay := e.record(t, "p1", models.ActionCommentApproved)
	assert.Equal(t, 2, nextDay.Profile.CurrentStreak)

	e.Clock.Advance(72 * time.Hour)
	broken := e.record(t, "p1", models.ActionCommentApproved)
	assert.Equal(t, 1, broken.Profile.CurrentStreak)
	assert.Equal(t, 2, broken.Profile.LongestStreak)
}

func TestRecordActionConsumesStreakFreeze(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "p1")
	e.record(t, "p1", models.ActionCommentApproved)

	freezeEnd := testEpoch.Add(96 * time.Hour)
	require.NoError(t, e.DB.Model(&models.GamificationProfile{}).
		Where("profile_id = ?", "p1").
		Update("streak_frozen_until", freezeEnd).Error)

	e.Clock.Advance(72 * time.Hour)
	res := e.record(t, "p1", models.ActionCommentApproved)
	assert.Equal(t, 2, res.Profile.CurrentStreak)

	var stored models.GamificationProfile
	require.NoError(t, e.DB.Where("profile_id = ?", "p1").First(&stored).Error)
	assert.Nil(t, stored.StreakFrozenUntil)
}

func TestRecordActionCompletesWeeklyChallengeAndSyncsRoles(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "commenter")

	var last *RecordActionResult
	for i := 0; i < 3; i++ {
		last = e.record(t, "commenter", models.ActionCommentApproved)
		require.True(t, last.Applied)
		if i < 2 {
			assert.Empty(t, last.CompletedChallenges)
		}
		e.Clock.Advance(time.Minute)
	}

	require.Len(t, last.CompletedChallenges, 1)
	assert.Equal(t, "weekly-commenter", last.CompletedChallenges[0].Slug)
	assert.Contains(t, badgeSlugs(last.NewlyEarnedBadges), "weekly-commenter")
	assert.Contains(t, last.RolesAdded, "community-champion")

	var ch models.Challenge
	require.NoError(t, e.DB.Where("slug = ?", "weekly-commenter").First(&ch).Error)
	var progress models.ChallengeProgress
	require.NoError(t, e.DB.Where("profile_id = ? AND challenge_id = ?", "commenter", ch.ID).First(&progress).Error)
	assert.Equal(t, models.ChallengeStatusCompleted, progress.Status)
	require.NotNil(t, progress.CompletedAt)

	// a fourth approval does not report the challenge again
	fourth := e.record(t, "commenter", models.ActionCommentApproved)
	assert.Empty(t, fourth.CompletedChallenges)
	assert.Empty(t, fourth.RolesAdded)
}

func TestRecordActionInvalidInput(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Progression.RecordAction(context.Background(), RecordActionInput{ProfileID: "  ", ActionType: models.ActionPostPublished})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, IsStoreError(err))
}

func TestRecordActionStoreFailureIsStoreError(t *testing.T) {
	e := newTestEngine(t)
	e.optIn(t, "p1")
	require.NoError(t, e.DB.Migrator().DropTable(&models.GamificationAction{}))

	_, err := e.Progression.RecordAction(context.Background(), RecordActionInput{ProfileID: "p1", ActionType: models.ActionPostPublished})
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
}

func TestSetOptInIsIdempotent(t *testing.T) {
	e := newTestEngine(t)

	prof, err := e.Progression.SetOptIn(context.Background(), "p1", true)
	require.NoError(t, err)
	assert.True(t, prof.OptedIn)
	assert.Equal(t, 1, prof.Level)

	prof, err = e.Progression.SetOptIn(context.Background(), "p1", true)
	require.NoError(t, err)
	assert.True(t, prof.OptedIn)

	prof, err = e.Progression.SetOptIn(context.Background(), "p1", false)
	require.NoError(t, err)
	assert.False(t, prof.OptedIn)

	var count int64
	require.NoError(t, e.DB.Model(&models.GamificationProfile{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
