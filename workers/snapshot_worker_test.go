package workers

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sips-gamification/cache"
	"sips-gamification/logger"
	"sips-gamification/models"
	"sips-gamification/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeArchive struct {
	mu   sync.Mutex
	docs map[string]interface{}
	fail bool
}

func (f *fakeArchive) PutJSON(_ context.Context, key string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("bucket unavailable")
	}
	if f.docs == nil {
		f.docs = map[string]interface{}{}
	}
	f.docs[key] = v
	return nil
}

func newLeaderboard(t *testing.T, now time.Time) *services.LeaderboardService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "worker.db")), &gorm.Config{
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

	require.NoError(t, db.Create(&models.GamificationProfile{
		ProfileID: "p1", XPTotal: 420, Level: 3, OptedIn: true,
	}).Error)

	log := logger.Nop()
	lb := services.NewLeaderboardService(db, cache.NewMemory(log), log, time.Minute)
	lb.Now = func() time.Time { return now }
	return lb
}

func TestSnapshotWorkerRunOnceArchives(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	archive := &fakeArchive{}
	w := NewSnapshotWorker(newLeaderboard(t, now), archive, logger.Nop())

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Len(t, archive.docs, 9)

	doc, ok := archive.docs["leaderboards/global/all/2026-03-04T09:30:00Z.json"].(archivedSnapshot)
	require.True(t, ok)
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "p1", doc.Entries[0].ProfileID)
	assert.Equal(t, now.Add(time.Minute), doc.ExpiresAt)

	for key := range archive.docs {
		assert.True(t, strings.HasPrefix(key, "leaderboards/"), key)
	}
}

func TestSnapshotWorkerArchiveFailureIsNotFatal(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	w := NewSnapshotWorker(newLeaderboard(t, now), &fakeArchive{fail: true}, logger.Nop())

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestSnapshotWorkerWithoutArchive(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	w := NewSnapshotWorker(newLeaderboard(t, now), nil, logger.Nop())

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestSnapshotWorkerRunStopsOnCancel(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	w := NewSnapshotWorker(newLeaderboard(t, now), nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestArchiveKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "leaderboards/weekly/post/2026-03-04T08:30:00Z.json",
		ArchiveKey(models.LeaderboardSnapshot{Scope: models.ScopeWeekly, Category: "post", CapturedAt: at}))
	assert.Equal(t, "leaderboards/global/all/2026-03-04T08:30:00Z.json",
		ArchiveKey(models.LeaderboardSnapshot{Scope: models.ScopeGlobal, CapturedAt: at}))
}
