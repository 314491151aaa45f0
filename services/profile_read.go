package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"sips-gamification/cache"
	"sips-gamification/logger"
	"sips-gamification/models"

	"gorm.io/gorm"
)

const (
	profileCacheTTL   = 60 * time.Second
	recentActionLimit = 20
)

// OwnedBadgeView is an owned badge with its catalog details inlined.
type OwnedBadgeView struct {
	BadgeID     string                 `json:"badge_id"`
	Slug        string                 `json:"slug"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Category    string                 `json:"category"`
	IconURL     string                 `json:"icon_url,omitempty"`
	Rarity      models.BadgeRarity     `json:"rarity"`
	State       models.OwnedBadgeState `json:"state"`
	AwardedAt   time.Time              `json:"awarded_at"`
}

// StreakHistoryPoint aggregates recent actions per UTC day.
type StreakHistoryPoint struct {
	Date    string `json:"date"`
	XP      int64  `json:"xp"`
	Actions int    `json:"actions"`
}

type ProfilePayload struct {
	Profile       models.GamificationProfile  `json:"profile"`
	Level         LevelResolution             `json:"level"`
	Badges        []OwnedBadgeView            `json:"badges"`
	RecentActions []models.GamificationAction `json:"recent_actions"`
	StreakHistory []StreakHistoryPoint        `json:"streak_history"`
	Roles         []string                    `json:"roles"`
}

type ProfileReadService struct {
	DB     *gorm.DB
	Cache  cache.Cache
	Log    *logger.Logger
	Levels *LevelService
	Roles  *RoleSyncService
}

func NewProfileReadService(db *gorm.DB, c cache.Cache, log *logger.Logger, levels *LevelService, roles *RoleSyncService) *ProfileReadService {
	return &ProfileReadService{
		DB:     db,
		Cache:  c,
		Log:    log.With("service", "ProfileReadService"),
		Levels: levels,
		Roles:  roles,
	}
}

// FetchGamificationProfile assembles the profile summary. A profile that has never acted
// reads as a zero-valued level-1 profile; nothing is written.
func (s *ProfileReadService) FetchGamificationProfile(ctx context.Context, profileID string) (*ProfilePayload, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrInvalidInput
	}

	var cached ProfilePayload
	if s.Cache.Get(ctx, profileCacheKey(profileID), &cached) {
		return &cached, nil
	}

	var prof models.GamificationProfile
	err := s.DB.WithContext(ctx).Where("profile_id = ?", profileID).First(&prof).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		prof = models.GamificationProfile{ProfileID: profileID, Level: 1}
	case err != nil:
		return nil, storeErr("select profile", err)
	}

	level, err := s.Levels.Resolve(ctx, prof.XPTotal)
	if err != nil {
		return nil, err
	}

	badges, err := s.ownedBadges(ctx, profileID)
	if err != nil {
		return nil, err
	}

	var recent []models.GamificationAction
	if err := s.DB.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("awarded_at DESC").
		Limit(recentActionLimit).
		Find(&recent).Error; err != nil {
		return nil, storeErr("select recent actions", err)
	}

	roles, err := s.Roles.ProfileRoleSlugs(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}

	payload := &ProfilePayload{
		Profile:       prof,
		Level:         level,
		Badges:        badges,
		RecentActions: recent,
		StreakHistory: StreakHistory(recent),
		Roles:         roles,
	}
	s.Cache.Set(ctx, profileCacheKey(profileID), payload, profileCacheTTL)
	return payload, nil
}

type ownedBadgeRow struct {
	BadgeID     string
	Slug        *string
	Name        *string
	Description *string
	Category    *string
	IconURL     *string
	Rarity      *string
	State       string
	AwardedAt   *time.Time
}

func (s *ProfileReadService) ownedBadges(ctx context.Context, profileID string) ([]OwnedBadgeView, error) {
	var rows []ownedBadgeRow
	err := s.DB.WithContext(ctx).Table("profile_badges AS pb").
		Select("pb.badge_id, b.slug, b.name, b.description, b.category, b.icon_url, b.rarity, pb.state, pb.awarded_at").
		Joins("LEFT JOIN gamification_badges AS b ON b.id = pb.badge_id").
		Where("pb.profile_id = ?", profileID).
		Order("pb.awarded_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr("select owned badges", err)
	}

	views := make([]OwnedBadgeView, 0, len(rows))
	for _, r := range rows {
		if r.Slug == nil || *r.Slug == "" || r.Name == nil || *r.Name == "" || r.AwardedAt == nil {
			s.Log.Warn("dropping malformed owned badge row", "profile_id", profileID, "badge_id", r.BadgeID)
			continue
		}
		views = append(views, OwnedBadgeView{
			BadgeID:     r.BadgeID,
			Slug:        *r.Slug,
			Name:        *r.Name,
			Description: deref(r.Description),
			Category:    deref(r.Category),
			IconURL:     deref(r.IconURL),
			Rarity:      models.BadgeRarity(deref(r.Rarity)),
			State:       models.OwnedBadgeState(r.State),
			AwardedAt:   r.AwardedAt.UTC(),
		})
	}
	return views, nil
}

// StreakHistory buckets actions by UTC day, oldest first.
func StreakHistory(actions []models.GamificationAction) []StreakHistoryPoint {
	byDay := make(map[string]*StreakHistoryPoint)
	for _, a := range actions {
		day := a.AwardedAt.UTC().Format("2006-01-02")
		p, ok := byDay[day]
		if !ok {
			p = &StreakHistoryPoint{Date: day}
			byDay[day] = p
		}
		p.XP += a.XPAwarded
		p.Actions++
	}
	out := make([]StreakHistoryPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
