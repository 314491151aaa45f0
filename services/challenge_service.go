package services

import (
	"context"
	"time"

	"sips-gamification/logger"
	"sips-gamification/metrics"
	"sips-gamification/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChallengeService struct {
	DB  *gorm.DB
	Log *logger.Logger
}

func NewChallengeService(db *gorm.DB, log *logger.Logger) *ChallengeService {
	return &ChallengeService{DB: db, Log: log.With("service", "ChallengeService")}
}

// ActiveAt returns active challenges whose window contains now.
func (s *ChallengeService) ActiveAt(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND starts_at <= ? AND ends_at >= ?", true, now, now).
		Order("ends_at ASC").
		Find(&challenges).Error
	if err != nil {
		return nil, storeErr("select active challenges", err)
	}
	return challenges, nil
}

// Evaluate recomputes progress on every open challenge for the profile and returns the ones
// that became completed in this pass. Completed rows are never reopened.
func (s *ChallengeService) Evaluate(ctx context.Context, prof *models.GamificationProfile, action models.ActionType, now time.Time) ([]models.Challenge, error) {
	challenges, err := s.ActiveAt(ctx, now)
	if err != nil || len(challenges) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(challenges))
	for _, c := range challenges {
		ids = append(ids, c.ID)
	}
	var existing []models.ChallengeProgress
	if err := s.DB.WithContext(ctx).
		Where("profile_id = ? AND challenge_id IN ?", prof.ProfileID, ids).
		Find(&existing).Error; err != nil {
		return nil, storeErr("select challenge progress", err)
	}
	byChallenge := make(map[string]models.ChallengeProgress, len(existing))
	for _, p := range existing {
		byChallenge[p.ChallengeID] = p
	}

	var rows []models.ChallengeProgress
	var completed []models.Challenge
	for _, ch := range challenges {
		req := ch.Requirement()
		if !supportedChallengeKind(req) {
			s.Log.Warn("skipping challenge with unsupported requirement", "challenge", ch.Slug, "kind", req.Kind, "problem", req.Problem)
			continue
		}
		target := req.Target()

		row, ok := byChallenge[ch.ID]
		if !ok {
			row = models.ChallengeProgress{
				ProfileID:   prof.ProfileID,
				ChallengeID: ch.ID,
				Status:      models.ChallengeStatusActive,
				Progress:    datatypes.JSONMap{"value": 0, "target": target},
				StartedAt:   ch.StartsAt,
			}
		}
		if row.Status == models.ChallengeStatusCompleted {
			rows = append(rows, row)
			continue
		}

		value, _ := metadataInt(row.Progress, "value")
		switch req.Kind {
		case models.RequirementTotalActions:
			if action == req.ActionType {
				if err := s.DB.WithContext(ctx).Model(&models.GamificationAction{}).
					Where("profile_id = ? AND action_type = ? AND awarded_at >= ? AND awarded_at <= ?",
						prof.ProfileID, req.ActionType, ch.StartsAt, ch.EndsAt).
					Count(&value).Error; err != nil {
					return nil, storeErr("count challenge actions", err)
				}
			}
		case models.RequirementStreak:
			value = int64(prof.CurrentStreak)
		case models.RequirementLevelReached:
			value = int64(prof.Level)
		}

		row.Progress = datatypes.JSONMap{"value": value, "target": target}
		row.Status = models.ChallengeStatusActive
		if value >= target {
			completedAt := now
			row.Status = models.ChallengeStatusCompleted
			row.CompletedAt = &completedAt
			completed = append(completed, ch)
		}
		row.UpdatedAt = now
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := s.upsertProgress(ctx, rows); err != nil {
			return nil, err
		}
	}
	for _, ch := range completed {
		metrics.ChallengesCompleted.WithLabelValues(ch.Slug).Inc()
		s.Log.Info("🏁 challenge completed", "profile_id", prof.ProfileID, "challenge", ch.Slug)
	}
	return completed, nil
}

// upsertProgress writes the batch keyed by (profile, challenge). A row already completed in
// the store keeps its status, progress and completed_at even if a concurrent pass saw it active.
func (s *ChallengeService) upsertProgress(ctx context.Context, rows []models.ChallengeProgress) error {
	const table = "profile_challenge_progress"
	done := string(models.ChallengeStatusCompleted)
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "profile_id"}, {Name: "challenge_id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "status"}, Value: gorm.Expr("CASE WHEN "+table+".status = ? THEN "+table+".status ELSE excluded.status END", done)},
			{Column: clause.Column{Name: "progress"}, Value: gorm.Expr("CASE WHEN "+table+".status = ? THEN "+table+".progress ELSE excluded.progress END", done)},
			{Column: clause.Column{Name: "completed_at"}, Value: gorm.Expr("COALESCE(" + table + ".completed_at, excluded.completed_at)")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(&rows).Error
	return storeErr("upsert challenge progress", err)
}

// Progress returns the profile's progress rows, newest first.
func (s *ChallengeService) Progress(ctx context.Context, profileID string) ([]models.ChallengeProgress, error) {
	var rows []models.ChallengeProgress
	if err := s.DB.WithContext(ctx).Where("profile_id = ?", profileID).Order("started_at DESC").Find(&rows).Error; err != nil {
		return nil, storeErr("select challenge progress", err)
	}
	return rows, nil
}

// ExpireEnded marks active progress on challenges whose window closed before now as expired.
func (s *ChallengeService) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	ended := s.DB.WithContext(ctx).Model(&models.Challenge{}).Select("id").Where("ends_at < ?", now)
	res := s.DB.WithContext(ctx).Model(&models.ChallengeProgress{}).
		Where("status = ? AND challenge_id IN (?)", models.ChallengeStatusActive, ended).
		Updates(map[string]interface{}{"status": models.ChallengeStatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, storeErr("expire challenge progress", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Info("⏹️ expired challenge progress", "rows", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func supportedChallengeKind(req models.Requirement) bool {
	switch req.Kind {
	case models.RequirementTotalActions, models.RequirementStreak, models.RequirementLevelReached:
		return true
	}
	return false
}
