package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sips-gamification/cache"
	"sips-gamification/logger"
	"sips-gamification/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testEpoch is a Monday; weekly windows open at 00:00 the same day.
var testEpoch = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gamification.db")), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type testEngine struct {
	DB          *gorm.DB
	Clock       *fakeClock
	Cache       *cache.Memory
	Progression *ProgressionService
	Profiles    *ProfileReadService
	Leaderboard *LeaderboardService
}

// newTestEngine wires every service against a seeded sqlite store and a fake clock.
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	db := newTestDB(t)
	clock := &fakeClock{now: testEpoch}
	log := logger.Nop()
	mem := cache.NewMemoryWithClock(log, clock.Now)

	require.NoError(t, SeedCatalog(context.Background(), db, log, clock.Now()))

	progression := NewProgressionService(db, mem, log)
	progression.Now = clock.Now
	progression.Roles.Now = clock.Now
	actions := make(map[models.ActionType]ActionDefinition, len(DefaultActionDefinitions))
	for k, v := range DefaultActionDefinitions {
		actions[k] = v
	}
	progression.Actions = actions

	leaderboard := NewLeaderboardService(db, mem, log, DefaultSnapshotTTL)
	leaderboard.Now = clock.Now

	return &testEngine{
		DB:          db,
		Clock:       clock,
		Cache:       mem,
		Progression: progression,
		Profiles:    NewProfileReadService(db, mem, log, progression.Levels, progression.Roles),
		Leaderboard: leaderboard,
	}
}

func (e *testEngine) optIn(t *testing.T, profileID string) {
	t.Helper()
	_, err := e.Progression.SetOptIn(context.Background(), profileID, true)
	require.NoError(t, err)
}

func (e *testEngine) record(t *testing.T, profileID string, action models.ActionType) *RecordActionResult {
	t.Helper()
	res, err := e.Progression.RecordAction(context.Background(), RecordActionInput{
		ProfileID:  profileID,
		ActionType: action,
	})
	require.NoError(t, err)
	return res
}

func (e *testEngine) ledgerCount(t *testing.T, profileID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.DB.Model(&models.GamificationAction{}).Where("profile_id = ?", profileID).Count(&n).Error)
	return n
}

func badgeSlugs(badges []models.Badge) []string {
	out := make([]string, 0, len(badges))
	for _, b := range badges {
		out = append(out, b.Slug)
	}
	return out
}
