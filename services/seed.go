package services

import (
	"context"
	"time"

	"sips-gamification/logger"
	"sips-gamification/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedCatalog inserts the default levels, badges, challenges and roles. Rows that already exist
// under the same natural key are left as they are, so admin edits survive restarts.
func SeedCatalog(ctx context.Context, db *gorm.DB, log *logger.Logger, now time.Time) error {
	now = now.UTC()
	tx := db.WithContext(ctx)

	levels := make([]models.LevelDefinition, len(models.DefaultLevels))
	copy(levels, models.DefaultLevels)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "level"}},
		DoNothing: true,
	}).Create(&levels).Error; err != nil {
		return storeErr("seed levels", err)
	}

	badges := make([]models.Badge, 0, len(models.DefaultBadges))
	for _, seed := range models.DefaultBadges {
		req, err := models.MarshalRequirement(seed.Requirement)
		if err != nil {
			return err
		}
		badges = append(badges, models.Badge{
			ID:           uuid.NewString(),
			Slug:         slug.Make(seed.Name),
			Name:         seed.Name,
			Description:  seed.Description,
			Category:     seed.Category,
			Rarity:       seed.Rarity,
			Requirements: req,
		})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&badges).Error; err != nil {
		return storeErr("seed badges", err)
	}

	// Reward badges are referenced by id, so resolve them from the stored rows.
	var stored []models.Badge
	if err := tx.Select("id", "slug").Find(&stored).Error; err != nil {
		return storeErr("select seeded badges", err)
	}
	badgeIDs := make(map[string]string, len(stored))
	for _, b := range stored {
		badgeIDs[b.Slug] = b.ID
	}

	challenges := make([]models.Challenge, 0, len(models.DefaultChallenges))
	for _, seed := range models.DefaultChallenges {
		req, err := models.MarshalRequirement(seed.Requirement)
		if err != nil {
			return err
		}
		startsAt, endsAt := ChallengeWindow(seed.Cadence, seed.Duration, now)
		ch := models.Challenge{
			ID:           uuid.NewString(),
			Slug:         slug.Make(seed.Slug),
			Title:        seed.Title,
			Description:  seed.Description,
			Cadence:      seed.Cadence,
			Requirements: req,
			RewardPoints: seed.RewardPoints,
			StartsAt:     startsAt,
			EndsAt:       endsAt,
			IsActive:     true,
		}
		if id, ok := badgeIDs[seed.RewardBadgeSlug]; ok {
			ch.RewardBadgeID = &id
		}
		challenges = append(challenges, ch)
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&challenges).Error; err != nil {
		return storeErr("seed challenges", err)
	}

	roles := make([]models.Role, 0, len(models.DefaultRoles))
	for _, r := range models.DefaultRoles {
		r.ID = uuid.NewString()
		r.Slug = slug.Make(r.Slug)
		roles = append(roles, r)
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&roles).Error; err != nil {
		return storeErr("seed roles", err)
	}

	log.Info("🌱 catalog seeded",
		"levels", len(levels),
		"badges", len(badges),
		"challenges", len(challenges),
		"roles", len(roles),
	)
	return nil
}

// ChallengeWindow returns the current window for a cadence, inclusive on both ends.
// Cadences without a calendar anchor start at the beginning of today and run for duration.
func ChallengeWindow(cadence models.ChallengeCadence, duration time.Duration, now time.Time) (time.Time, time.Time) {
	day := startOfUTCDay(now)
	var start, end time.Time
	switch cadence {
	case models.CadenceDaily:
		start = day
		end = day.AddDate(0, 0, 1)
	case models.CadenceWeekly:
		start, _ = windowStart(models.ScopeWeekly, now)
		end = start.AddDate(0, 0, 7)
	case models.CadenceMonthly:
		start, _ = windowStart(models.ScopeMonthly, now)
		end = start.AddDate(0, 1, 0)
	default:
		if duration <= 0 {
			duration = 7 * 24 * time.Hour
		}
		start = day
		end = day.Add(duration)
	}
	return start, end.Add(-time.Second)
}
