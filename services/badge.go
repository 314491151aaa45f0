package services

import (
	"context"
	"time"

	"sips-gamification/logger"
	"sips-gamification/metrics"
	"sips-gamification/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB  *gorm.DB
	Log *logger.Logger
}

func NewBadgeService(db *gorm.DB, log *logger.Logger) *BadgeService {
	return &BadgeService{DB: db, Log: log.With("service", "BadgeService")}
}

// OwnedBadgeIDs returns every badge id the profile holds in any state. Revoked and
// suspended badges stay in the set so they are never silently re-awarded.
func (s *BadgeService) OwnedBadgeIDs(ctx context.Context, profileID string) (map[string]struct{}, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.OwnedBadge{}).
		Where("profile_id = ?", profileID).
		Pluck("badge_id", &ids).Error; err != nil {
		return nil, storeErr("select owned badges", err)
	}
	owned := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		owned[id] = struct{}{}
	}
	return owned, nil
}

// EvaluateAndAward checks every unowned, currently available badge against the profile and
// awards the ones whose requirement is met. kinds narrows evaluation to those requirement kinds.
// Safe to call repeatedly: the (profile, badge) pair is the conflict target.
func (s *BadgeService) EvaluateAndAward(ctx context.Context, prof *models.GamificationProfile, action models.ActionType, now time.Time, kinds ...models.RequirementKind) ([]models.Badge, error) {
	owned, err := s.OwnedBadgeIDs(ctx, prof.ProfileID)
	if err != nil {
		return nil, err
	}

	var catalog []models.Badge
	if err := s.DB.WithContext(ctx).Order("slug ASC").Find(&catalog).Error; err != nil {
		return nil, storeErr("select badge catalog", err)
	}

	counts := make(map[models.ActionType]int64)
	var earned []models.Badge
	for _, badge := range catalog {
		if _, ok := owned[badge.ID]; ok {
			continue
		}
		if !badge.AvailableAt(now) {
			continue
		}
		req := badge.Requirement()
		if !req.Valid() {
			s.Log.Warn("skipping badge with unparseable requirement", "badge", badge.Slug, "problem", req.Problem)
			continue
		}
		if len(kinds) > 0 && !containsKind(kinds, req.Kind) {
			continue
		}
		met, err := s.requirementMet(ctx, prof, action, req, counts)
		if err != nil {
			return nil, err
		}
		if met {
			earned = append(earned, badge)
		}
	}

	if len(earned) == 0 {
		return nil, nil
	}
	if err := s.insertOwned(ctx, prof.ProfileID, earned, now); err != nil {
		return nil, err
	}
	for _, b := range earned {
		metrics.BadgesAwarded.WithLabelValues(b.Slug).Inc()
		s.Log.Info("🎖️ badge awarded", "profile_id", prof.ProfileID, "badge", b.Slug)
	}
	return earned, nil
}

// AwardByIDs grants specific badges (challenge rewards) the profile does not own yet and
// returns the ones that were new.
func (s *BadgeService) AwardByIDs(ctx context.Context, profileID string, badgeIDs []string, now time.Time) ([]models.Badge, error) {
	owned, err := s.OwnedBadgeIDs(ctx, profileID)
	if err != nil {
		return nil, err
	}
	var candidates []models.Badge
	if err := s.DB.WithContext(ctx).Where("id IN ?", badgeIDs).Find(&candidates).Error; err != nil {
		return nil, storeErr("select reward badges", err)
	}
	var fresh []models.Badge
	for _, b := range candidates {
		if _, ok := owned[b.ID]; !ok {
			fresh = append(fresh, b)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := s.insertOwned(ctx, profileID, fresh, now); err != nil {
		return nil, err
	}
	for _, b := range fresh {
		metrics.BadgesAwarded.WithLabelValues(b.Slug).Inc()
		s.Log.Info("🎖️ reward badge awarded", "profile_id", profileID, "badge", b.Slug)
	}
	return fresh, nil
}

// Grant is the explicit admin upsert: it refreshes awarded_at and restores the awarded state.
func (s *BadgeService) Grant(ctx context.Context, profileID, badgeID string, now time.Time) error {
	row := models.OwnedBadge{ProfileID: profileID, BadgeID: badgeID, AwardedAt: now, State: models.BadgeStateAwarded}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}, {Name: "badge_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"awarded_at", "state"}),
	}).Create(&row).Error
	return storeErr("upsert profile badge", err)
}

func (s *BadgeService) insertOwned(ctx context.Context, profileID string, badges []models.Badge, now time.Time) error {
	rows := make([]models.OwnedBadge, 0, len(badges))
	for _, b := range badges {
		rows = append(rows, models.OwnedBadge{
			ProfileID: profileID,
			BadgeID:   b.ID,
			AwardedAt: now,
			State:     models.BadgeStateAwarded,
		})
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&rows).Error
	return storeErr("upsert profile badges", err)
}

func (s *BadgeService) requirementMet(ctx context.Context, prof *models.GamificationProfile, action models.ActionType, req models.Requirement, counts map[models.ActionType]int64) (bool, error) {
	switch req.Kind {
	case models.RequirementTotalActions:
		n, ok := counts[req.ActionType]
		if !ok {
			if err := s.DB.WithContext(ctx).Model(&models.GamificationAction{}).
				Where("profile_id = ? AND action_type = ?", prof.ProfileID, req.ActionType).
				Count(&n).Error; err != nil {
				return false, storeErr("count actions", err)
			}
			counts[req.ActionType] = n
		}
		return n >= req.Threshold, nil
	case models.RequirementLevelReached:
		return prof.Level >= req.Level, nil
	case models.RequirementStreak:
		return prof.LongestStreak >= req.Days, nil
	case models.RequirementEvent:
		// single-shot: only the action being recorded right now counts
		return string(action) == req.EventKey, nil
	case models.RequirementChallengeCompleted:
		var n int64
		err := s.DB.WithContext(ctx).Table("profile_challenge_progress AS p").
			Joins("JOIN gamification_challenges AS c ON c.id = p.challenge_id").
			Where("p.profile_id = ? AND c.slug = ? AND p.status = ?", prof.ProfileID, req.ChallengeSlug, models.ChallengeStatusCompleted).
			Count(&n).Error
		if err != nil {
			return false, storeErr("count completed challenges", err)
		}
		return n > 0, nil
	}
	return false, nil
}

func containsKind(kinds []models.RequirementKind, k models.RequirementKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
