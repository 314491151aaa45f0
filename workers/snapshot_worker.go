package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sips-gamification/logger"
	"sips-gamification/models"
	"sips-gamification/services"
)

// Archiver stores a JSON document under key. utils.R2Uploader satisfies it.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
}

// SnapshotWorker keeps leaderboard snapshots warm and, if an archiver is set, copies each
// fresh snapshot to object storage.
type SnapshotWorker struct {
	Leaderboard *services.LeaderboardService
	Archive     Archiver
	Log         *logger.Logger
}

func NewSnapshotWorker(leaderboard *services.LeaderboardService, archive Archiver, log *logger.Logger) *SnapshotWorker {
	return &SnapshotWorker{
		Leaderboard: leaderboard,
		Archive:     archive,
		Log:         log.With("worker", "SnapshotWorker"),
	}
}

type archivedSnapshot struct {
	Scope      models.LeaderboardScope   `json:"scope"`
	Category   string                    `json:"category,omitempty"`
	CapturedAt time.Time                 `json:"captured_at"`
	ExpiresAt  time.Time                 `json:"expires_at"`
	Entries    []models.LeaderboardEntry `json:"entries"`
}

// Run refreshes immediately and then on every tick until ctx is done.
func (w *SnapshotWorker) Run(ctx context.Context, interval time.Duration) {
	w.Log.Info("Starting leaderboard snapshot worker...", "interval", interval)
	if _, err := w.RunOnce(ctx); err != nil {
		w.Log.Error("❌ snapshot refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Log.Info("Snapshot worker stopped.")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.Log.Error("❌ snapshot refresh failed", "error", err)
			}
		}
	}
}

// RunOnce refreshes every standard board and returns how many snapshots were written.
// Archive failures are logged and do not fail the refresh.
func (w *SnapshotWorker) RunOnce(ctx context.Context) (int, error) {
	snaps, err := w.Leaderboard.RefreshSnapshots(ctx)
	if err != nil {
		return len(snaps), err
	}
	w.Log.Debug("📸 leaderboard snapshots refreshed", "count", len(snaps))

	if w.Archive == nil {
		return len(snaps), nil
	}
	for _, snap := range snaps {
		doc := archivedSnapshot{
			Scope:      snap.Scope,
			Category:   snap.Category,
			CapturedAt: snap.CapturedAt.UTC(),
			ExpiresAt:  snap.ExpiresAt.UTC(),
		}
		if err := json.Unmarshal(snap.Payload, &doc.Entries); err != nil {
			w.Log.Warn("skipping archive of undecodable snapshot", "snapshot_id", snap.ID, "error", err)
			continue
		}
		key := ArchiveKey(snap)
		if err := w.Archive.PutJSON(ctx, key, doc); err != nil {
			w.Log.Warn("snapshot archive failed", "key", key, "error", err)
		}
	}
	return len(snaps), nil
}

// ArchiveKey is leaderboards/<scope>/<category or "all">/<capturedAt RFC3339>.json.
func ArchiveKey(snap models.LeaderboardSnapshot) string {
	category := snap.Category
	if category == "" {
		category = "all"
	}
	return fmt.Sprintf("leaderboards/%s/%s/%s.json", snap.Scope, category, snap.CapturedAt.UTC().Format(time.RFC3339))
}
