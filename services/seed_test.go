package services

import (
	"context"
	"testing"
	"time"

	"sips-gamification/logger"
	"sips-gamification/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedCatalogIsIdempotentAndKeepsEdits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	log := logger.Nop()

	require.NoError(t, SeedCatalog(ctx, db, log, testEpoch))
	require.NoError(t, db.Model(&models.Badge{}).Where("slug = ?", "first-pour").Update("name", "First Sip").Error)
	require.NoError(t, SeedCatalog(ctx, db, log, testEpoch.AddDate(0, 1, 0)))

	var badges, levels, challenges, roles int64
	require.NoError(t, db.Model(&models.Badge{}).Count(&badges).Error)
	require.NoError(t, db.Model(&models.LevelDefinition{}).Count(&levels).Error)
	require.NoError(t, db.Model(&models.Challenge{}).Count(&challenges).Error)
	require.NoError(t, db.Model(&models.Role{}).Count(&roles).Error)
	assert.Equal(t, int64(len(models.DefaultBadges)), badges)
	assert.Equal(t, int64(len(models.DefaultLevels)), levels)
	assert.Equal(t, int64(len(models.DefaultChallenges)), challenges)
	assert.Equal(t, int64(len(models.DefaultRoles)), roles)

	var edited models.Badge
	require.NoError(t, db.Where("slug = ?", "first-pour").First(&edited).Error)
	assert.Equal(t, "First Sip", edited.Name)

	var catalog []models.Badge
	require.NoError(t, db.Find(&catalog).Error)
	for _, b := range catalog {
		assert.True(t, b.Requirement().Valid(), b.Slug)
	}

	var sprint models.Challenge
	require.NoError(t, db.Where("slug = ?", "five-day-streak").First(&sprint).Error)
	require.NotNil(t, sprint.RewardBadgeID)
	var reward models.Badge
	require.NoError(t, db.Where("id = ?", *sprint.RewardBadgeID).First(&reward).Error)
	assert.Equal(t, "five-day-sprinter", reward.Slug)
}

func TestChallengeWindow(t *testing.T) {
	wednesday := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

	start, end := ChallengeWindow(models.CadenceWeekly, 0, wednesday)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 8, 23, 59, 59, 0, time.UTC), end)

	start, end = ChallengeWindow(models.CadenceMonthly, 0, wednesday)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC), end)

	start, end = ChallengeWindow(models.CadenceDaily, 0, wednesday)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 4, 23, 59, 59, 0, time.UTC), end)

	start, end = ChallengeWindow(models.CadenceSeasonal, 48*time.Hour, wednesday)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC), end)
}

func TestMaintenanceJobs(t *testing.T) {
	e := newTestEngine(t)
	addChallenge(t, e, "ending", `{"type":"total_actions","action_type":"comment.approved","threshold":9}`,
		testEpoch.Add(-time.Hour), testEpoch.Add(time.Hour))
	e.optIn(t, "p1")
	e.record(t, "p1", models.ActionCommentApproved)
	seedProfile(t, e, "p2", 50, true)
	_, err := e.Leaderboard.RefreshSnapshots(context.Background())
	require.NoError(t, err)

	m := NewMaintenance(e.Progression.Challenges, e.Leaderboard, logger.Nop())
	m.Now = e.Clock.Now
	e.Clock.Advance(2 * time.Hour)

	m.SweepChallenges(context.Background())
	m.PruneSnapshots(context.Background())

	var expired, snaps int64
	require.NoError(t, e.DB.Model(&models.ChallengeProgress{}).Where("status = ?", models.ChallengeStatusExpired).Count(&expired).Error)
	require.NoError(t, e.DB.Model(&models.LeaderboardSnapshot{}).Count(&snaps).Error)
	assert.Equal(t, int64(1), expired)
	assert.Zero(t, snaps)

	require.NoError(t, m.Start(context.Background(), time.Hour))
	m.Stop()
}
