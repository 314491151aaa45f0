package services

import (
	"context"
	"sort"
	"time"

	"sips-gamification/logger"
	"sips-gamification/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleSyncService reconciles rule-governed role memberships. Roles that no rule names are
// manual grants and are never added or removed here.
type RoleSyncService struct {
	DB    *gorm.DB
	Log   *logger.Logger
	Rules []models.RoleAssignmentRule
	Now   func() time.Time
}

func NewRoleSyncService(db *gorm.DB, log *logger.Logger, rules []models.RoleAssignmentRule) *RoleSyncService {
	normalized := make([]models.RoleAssignmentRule, 0, len(rules))
	for _, r := range rules {
		r.RoleSlug = slug.Make(r.RoleSlug)
		if r.BadgeSlug != "" {
			r.BadgeSlug = slug.Make(r.BadgeSlug)
		}
		if r.RoleSlug == "" || (r.Level <= 0 && r.BadgeSlug == "") {
			continue
		}
		normalized = append(normalized, r)
	}
	return &RoleSyncService{
		DB:    db,
		Log:   log.With("service", "RoleSyncService"),
		Rules: normalized,
		Now:   time.Now,
	}
}

// GovernedRoles lists role slugs named by at least one rule.
func (s *RoleSyncService) GovernedRoles() []string {
	set := make(map[string]struct{})
	for _, r := range s.Rules {
		set[r.RoleSlug] = struct{}{}
	}
	return sortedKeys(set)
}

// DesiredRoles matches the rules against a level and a set of owned badge slugs.
func (s *RoleSyncService) DesiredRoles(level int, badgeSlugs map[string]struct{}) map[string]struct{} {
	desired := make(map[string]struct{})
	for _, r := range s.Rules {
		if r.BadgeSlug != "" {
			if _, ok := badgeSlugs[r.BadgeSlug]; ok {
				desired[r.RoleSlug] = struct{}{}
			}
			continue
		}
		if level >= r.Level {
			desired[r.RoleSlug] = struct{}{}
		}
	}
	return desired
}

// Sync adds missing desired roles and removes held rule-governed roles that are no longer
// desired. newBadges are badges awarded earlier in the same cycle.
func (s *RoleSyncService) Sync(ctx context.Context, prof *models.GamificationProfile, newBadges []models.Badge) (added, removed []string, err error) {
	governed := s.GovernedRoles()
	if len(governed) == 0 {
		return nil, nil, nil
	}

	var ownedSlugs []string
	if err := s.DB.WithContext(ctx).Table("profile_badges AS pb").
		Joins("JOIN gamification_badges AS b ON b.id = pb.badge_id").
		Where("pb.profile_id = ? AND pb.state = ?", prof.ProfileID, models.BadgeStateAwarded).
		Pluck("b.slug", &ownedSlugs).Error; err != nil {
		return nil, nil, storeErr("select owned badge slugs", err)
	}
	badgeSlugs := make(map[string]struct{}, len(ownedSlugs)+len(newBadges))
	for _, sl := range ownedSlugs {
		badgeSlugs[sl] = struct{}{}
	}
	for _, b := range newBadges {
		badgeSlugs[b.Slug] = struct{}{}
	}
	desired := s.DesiredRoles(prof.Level, badgeSlugs)

	var roles []models.Role
	if err := s.DB.WithContext(ctx).Where("slug IN ?", governed).Find(&roles).Error; err != nil {
		return nil, nil, storeErr("select roles", err)
	}
	roleBySlug := make(map[string]models.Role, len(roles))
	slugByID := make(map[string]string, len(roles))
	roleIDs := make([]string, 0, len(roles))
	for _, r := range roles {
		roleBySlug[r.Slug] = r
		slugByID[r.ID] = r.Slug
		roleIDs = append(roleIDs, r.ID)
	}
	for _, sl := range governed {
		if _, ok := roleBySlug[sl]; !ok {
			s.Log.Warn("role rule names a role that does not exist", "role", sl)
		}
	}
	if len(roleIDs) == 0 {
		return nil, nil, nil
	}

	var current []models.ProfileRole
	if err := s.DB.WithContext(ctx).
		Where("profile_id = ? AND role_id IN ?", prof.ProfileID, roleIDs).
		Find(&current).Error; err != nil {
		return nil, nil, storeErr("select profile roles", err)
	}
	held := make(map[string]struct{}, len(current))
	for _, pr := range current {
		held[slugByID[pr.RoleID]] = struct{}{}
	}

	now := s.Now().UTC()
	var toAdd []models.ProfileRole
	for _, sl := range sortedKeys(desired) {
		role, ok := roleBySlug[sl]
		if !ok {
			continue
		}
		if _, has := held[sl]; has {
			continue
		}
		toAdd = append(toAdd, models.ProfileRole{ProfileID: prof.ProfileID, RoleID: role.ID, GrantedAt: now})
		added = append(added, sl)
	}
	var removeIDs []string
	for _, sl := range sortedKeys(held) {
		if _, want := desired[sl]; want {
			continue
		}
		removeIDs = append(removeIDs, roleBySlug[sl].ID)
		removed = append(removed, sl)
	}

	if len(toAdd) > 0 {
		if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile_id"}, {Name: "role_id"}},
			DoNothing: true,
		}).Create(&toAdd).Error; err != nil {
			return nil, nil, storeErr("upsert profile roles", err)
		}
	}
	if len(removeIDs) > 0 {
		if err := s.DB.WithContext(ctx).
			Where("profile_id = ? AND role_id IN ?", prof.ProfileID, removeIDs).
			Delete(&models.ProfileRole{}).Error; err != nil {
			return nil, nil, storeErr("delete profile roles", err)
		}
	}
	if len(added) > 0 || len(removed) > 0 {
		s.Log.Info("🔑 roles synced", "profile_id", prof.ProfileID, "added", added, "removed", removed)
	}
	return added, removed, nil
}

// ProfileRoleSlugs returns every role slug the profile holds, manual grants included.
func (s *RoleSyncService) ProfileRoleSlugs(ctx context.Context, profileID string) ([]string, error) {
	var slugs []string
	err := s.DB.WithContext(ctx).Table("profile_roles AS pr").
		Joins("JOIN roles AS r ON r.id = pr.role_id").
		Where("pr.profile_id = ?", profileID).
		Order("r.slug ASC").
		Pluck("r.slug", &slugs).Error
	if err != nil {
		return nil, storeErr("select profile role slugs", err)
	}
	return slugs, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
