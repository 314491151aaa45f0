package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sips-gamification/cache"
	"sips-gamification/logger"
	"sips-gamification/metrics"
	"sips-gamification/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	leaderboardCacheTTL = 30 * time.Second
	leaderboardDepth    = 100
	defaultBoardLimit   = 10
	DefaultSnapshotTTL  = 5 * time.Minute
)

// SnapshotCategories are refreshed by the snapshot worker for every scope. "" is the overall board.
var SnapshotCategories = []string{"", "post", "comment"}

type LeaderboardFilters struct {
	Scope    models.LeaderboardScope `json:"scope" query:"scope"`
	Category string                  `json:"category,omitempty" query:"category"`
	Limit    int                     `json:"limit,omitempty" query:"limit"`
}

type LeaderboardResult struct {
	Scope      models.LeaderboardScope   `json:"scope"`
	Category   string                    `json:"category,omitempty"`
	Entries    []models.LeaderboardEntry `json:"entries"`
	CapturedAt time.Time                 `json:"captured_at"`
}

type LeaderboardService struct {
	DB          *gorm.DB
	Cache       cache.Cache
	Log         *logger.Logger
	SnapshotTTL time.Duration
	Now         func() time.Time
}

func NewLeaderboardService(db *gorm.DB, c cache.Cache, log *logger.Logger, snapshotTTL time.Duration) *LeaderboardService {
	if snapshotTTL <= 0 {
		snapshotTTL = DefaultSnapshotTTL
	}
	return &LeaderboardService{
		DB:          db,
		Cache:       c,
		Log:         log.With("service", "LeaderboardService"),
		SnapshotTTL: snapshotTTL,
		Now:         time.Now,
	}
}

func normalizeFilters(f LeaderboardFilters) (LeaderboardFilters, error) {
	if f.Scope == "" {
		f.Scope = models.ScopeGlobal
	}
	if !f.Scope.Valid() {
		return f, fmt.Errorf("%w: unknown leaderboard scope %q", ErrInvalidInput, f.Scope)
	}
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	for _, r := range f.Category {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return f, fmt.Errorf("%w: invalid leaderboard category %q", ErrInvalidInput, f.Category)
		}
	}
	if f.Limit <= 0 {
		f.Limit = defaultBoardLimit
	}
	if f.Limit > leaderboardDepth {
		f.Limit = leaderboardDepth
	}
	return f, nil
}

// FetchLeaderboard serves from the fast cache, then from an unexpired snapshot, then from a
// live ranking query whose result becomes the new snapshot.
func (s *LeaderboardService) FetchLeaderboard(ctx context.Context, filters LeaderboardFilters) (*LeaderboardResult, error) {
	f, err := normalizeFilters(filters)
	if err != nil {
		return nil, err
	}
	key := leaderboardCacheKey(f.Scope, f.Category)
	now := s.Now().UTC()

	var cached LeaderboardResult
	if s.Cache.Get(ctx, key, &cached) {
		metrics.LeaderboardReads.WithLabelValues("cache").Inc()
		return cached.limited(f.Limit), nil
	}

	snap, err := s.latestSnapshot(ctx, f.Scope, f.Category, now)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		res, err := decodeSnapshot(snap)
		if err == nil {
			s.Cache.Set(ctx, key, res, minDuration(leaderboardCacheTTL, snap.ExpiresAt.Sub(now)))
			metrics.LeaderboardReads.WithLabelValues("snapshot").Inc()
			return res.limited(f.Limit), nil
		}
		s.Log.Warn("discarding undecodable leaderboard snapshot", "snapshot_id", snap.ID, "error", err)
	}

	res, _, err := s.refresh(ctx, f.Scope, f.Category, now)
	if err != nil {
		return nil, err
	}
	metrics.LeaderboardReads.WithLabelValues("live").Inc()
	return res.limited(f.Limit), nil
}

// RefreshSnapshots recomputes every standard board and returns the snapshots it wrote.
func (s *LeaderboardService) RefreshSnapshots(ctx context.Context) ([]models.LeaderboardSnapshot, error) {
	now := s.Now().UTC()
	var written []models.LeaderboardSnapshot
	for _, scope := range []models.LeaderboardScope{models.ScopeGlobal, models.ScopeWeekly, models.ScopeMonthly} {
		for _, category := range SnapshotCategories {
			_, snap, err := s.refresh(ctx, scope, category, now)
			if err != nil {
				return written, err
			}
			written = append(written, *snap)
		}
	}
	return written, nil
}

// PruneExpired deletes snapshots past their expiry. Returns the number removed.
func (s *LeaderboardService) PruneExpired(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", s.Now().UTC()).
		Delete(&models.LeaderboardSnapshot{})
	if res.Error != nil {
		return 0, storeErr("prune expired snapshots", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *LeaderboardService) refresh(ctx context.Context, scope models.LeaderboardScope, category string, now time.Time) (*LeaderboardResult, *models.LeaderboardSnapshot, error) {
	entries, err := s.rank(ctx, scope, category, now)
	if err != nil {
		return nil, nil, err
	}
	res := &LeaderboardResult{Scope: scope, Category: category, Entries: entries, CapturedAt: now}
	snap, err := s.persistSnapshot(ctx, res, now)
	if err != nil {
		return nil, nil, err
	}
	s.Cache.Set(ctx, leaderboardCacheKey(scope, category), res, minDuration(leaderboardCacheTTL, s.SnapshotTTL))
	return res, snap, nil
}

func (s *LeaderboardService) latestSnapshot(ctx context.Context, scope models.LeaderboardScope, category string, now time.Time) (*models.LeaderboardSnapshot, error) {
	var snap models.LeaderboardSnapshot
	err := s.DB.WithContext(ctx).
		Where("scope = ? AND category = ? AND expires_at > ?", scope, category, now).
		Order("captured_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("select snapshot", err)
	}
	return &snap, nil
}

// persistSnapshot inserts then prunes older rows for the same board. Two concurrent writers
// can both survive until the next prune; readers take the newest.
func (s *LeaderboardService) persistSnapshot(ctx context.Context, res *LeaderboardResult, now time.Time) (*models.LeaderboardSnapshot, error) {
	payload, err := json.Marshal(res.Entries)
	if err != nil {
		return nil, fmt.Errorf("encode leaderboard payload: %w", err)
	}
	snap := models.LeaderboardSnapshot{
		ID:         uuid.NewString(),
		Scope:      res.Scope,
		Category:   res.Category,
		CapturedAt: now,
		ExpiresAt:  now.Add(s.SnapshotTTL),
		Payload:    payload,
	}
	if err := s.DB.WithContext(ctx).Create(&snap).Error; err != nil {
		return nil, storeErr("insert snapshot", err)
	}
	if err := s.DB.WithContext(ctx).
		Where("scope = ? AND category = ? AND captured_at < ?", res.Scope, res.Category, now).
		Delete(&models.LeaderboardSnapshot{}).Error; err != nil {
		return nil, storeErr("prune snapshots", err)
	}
	return &snap, nil
}

type rankedRow struct {
	ProfileID     string
	XP            int64
	Level         int
	CurrentStreak int
}

func (s *LeaderboardService) rank(ctx context.Context, scope models.LeaderboardScope, category string, now time.Time) ([]models.LeaderboardEntry, error) {
	var rows []rankedRow
	// Opted-out profiles never appear on a board, even when admin adjustments gave them XP.
	if scope == models.ScopeGlobal && category == "" {
		err := s.DB.WithContext(ctx).Model(&models.GamificationProfile{}).
			Select("profile_id, xp_total AS xp, level, current_streak").
			Where("opted_in = ? AND xp_total > 0", true).
			Order("xp_total DESC, profile_id ASC").
			Limit(leaderboardDepth).
			Scan(&rows).Error
		if err != nil {
			return nil, storeErr("rank profiles", err)
		}
	} else {
		q := s.DB.WithContext(ctx).Table("gamification_actions AS a").
			Select("a.profile_id AS profile_id, SUM(a.xp_awarded) AS xp, p.level AS level, p.current_streak AS current_streak").
			Joins("JOIN gamification_profiles AS p ON p.profile_id = a.profile_id").
			Where("p.opted_in = ?", true)
		if start, ok := windowStart(scope, now); ok {
			q = q.Where("a.awarded_at >= ?", start)
		}
		if category != "" {
			q = q.Where("a.action_type LIKE ?", category+".%")
		}
		err := q.Group("a.profile_id, p.level, p.current_streak").
			Having("SUM(a.xp_awarded) > 0").
			Order("xp DESC, a.profile_id ASC").
			Limit(leaderboardDepth).
			Scan(&rows).Error
		if err != nil {
			return nil, storeErr("rank ledger", err)
		}
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		entries = append(entries, models.LeaderboardEntry{
			Rank:          i + 1,
			ProfileID:     r.ProfileID,
			XP:            r.XP,
			Level:         r.Level,
			CurrentStreak: r.CurrentStreak,
		})
	}
	return entries, nil
}

// windowStart is Monday 00:00 UTC for weekly and the 1st 00:00 UTC for monthly.
func windowStart(scope models.LeaderboardScope, now time.Time) (time.Time, bool) {
	day := startOfUTCDay(now)
	switch scope {
	case models.ScopeWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), true
	case models.ScopeMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func decodeSnapshot(snap *models.LeaderboardSnapshot) (*LeaderboardResult, error) {
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(snap.Payload, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	return &LeaderboardResult{
		Scope:      snap.Scope,
		Category:   snap.Category,
		Entries:    entries,
		CapturedAt: snap.CapturedAt.UTC(),
	}, nil
}

func (r LeaderboardResult) limited(limit int) *LeaderboardResult {
	if r.Entries == nil {
		r.Entries = []models.LeaderboardEntry{}
	}
	if len(r.Entries) > limit {
		r.Entries = r.Entries[:limit]
	}
	return &r
}

func minDuration(a, b time.Duration) time.Duration {
	if b < a {
		return b
	}
	return a
}
