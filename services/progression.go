package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sips-gamification/cache"
	"sips-gamification/logger"
	"sips-gamification/metrics"
	"sips-gamification/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RejectReason string

const (
	RejectOptedOut         RejectReason = "opted_out"
	RejectDuplicateRequest RejectReason = "duplicate_request"
	RejectCooldown         RejectReason = "cooldown"
	RejectDailyCap         RejectReason = "daily_cap"
)

type RecordActionInput struct {
	ProfileID    string                 `json:"profile_id" validate:"required,max=128"`
	ActionType   models.ActionType      `json:"action_type" validate:"required,max=64"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ActionSource *string                `json:"action_source,omitempty" validate:"omitempty,max=255"`
	RequestID    *string                `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

type RecordActionResult struct {
	Applied             bool                       `json:"applied"`
	Reason              RejectReason               `json:"reason,omitempty"`
	XPAwarded           int64                      `json:"xp_awarded"`
	PointsAwarded       int64                      `json:"points_awarded"`
	Profile             models.GamificationProfile `json:"profile"`
	Level               LevelResolution            `json:"level"`
	LeveledUp           bool                       `json:"leveled_up"`
	NewlyEarnedBadges   []models.Badge             `json:"newly_earned_badges"`
	CompletedChallenges []models.Challenge         `json:"completed_challenges"`
	RolesAdded          []string                   `json:"roles_added,omitempty"`
	RolesRemoved        []string                   `json:"roles_removed,omitempty"`
}

// awardCycle is threaded through the post-persist stages. Each stage reads what earlier
// stages wrote (role sync needs the badges awarded this cycle).
type awardCycle struct {
	profile         models.GamificationProfile
	requestedAction models.ActionType
	action          models.ActionType
	now             time.Time
	result          *RecordActionResult
}

type awardStage func(ctx context.Context, cycle *awardCycle) error

// ProgressionService is the points/action engine.
type ProgressionService struct {
	DB         *gorm.DB
	Cache      cache.Cache
	Log        *logger.Logger
	Levels     *LevelService
	Badges     *BadgeService
	Challenges *ChallengeService
	Roles      *RoleSyncService
	Actions    map[models.ActionType]ActionDefinition
	Now        func() time.Time
}

func NewProgressionService(db *gorm.DB, c cache.Cache, log *logger.Logger) *ProgressionService {
	return &ProgressionService{
		DB:         db,
		Cache:      c,
		Log:        log.With("service", "ProgressionService"),
		Levels:     NewLevelService(db, c),
		Badges:     NewBadgeService(db, log),
		Challenges: NewChallengeService(db, log),
		Roles:      NewRoleSyncService(db, log, models.DefaultRoleRules),
		Actions:    DefaultActionDefinitions,
		Now:        time.Now,
	}
}

// EnsureProfile returns the profile row, creating a zero-valued one if missing (idempotent).
func (s *ProgressionService) EnsureProfile(ctx context.Context, profileID string) (*models.GamificationProfile, error) {
	fresh := models.GamificationProfile{ProfileID: profileID, Level: 1}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, storeErr("create profile", err)
	}
	var prof models.GamificationProfile
	if err := s.DB.WithContext(ctx).Where("profile_id = ?", profileID).First(&prof).Error; err != nil {
		return nil, storeErr("select profile", err)
	}
	return &prof, nil
}

// SetOptIn toggles participation. Opted-out profiles only move through manual adjustments.
func (s *ProgressionService) SetOptIn(ctx context.Context, profileID string, optedIn bool) (*models.GamificationProfile, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, fmt.Errorf("%w: profile_id required", ErrInvalidInput)
	}
	prof, err := s.EnsureProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if prof.OptedIn != optedIn {
		err := s.DB.WithContext(ctx).Model(&models.GamificationProfile{}).
			Where("profile_id = ?", profileID).
			Updates(map[string]interface{}{"opted_in": optedIn, "updated_at": s.Now().UTC()}).Error
		if err != nil {
			return nil, storeErr("update opt-in", err)
		}
		prof.OptedIn = optedIn
	}
	s.Cache.Del(ctx, profileCacheKey(profileID))
	s.Cache.Del(ctx, leaderboardKeysFor(models.ActionManualAdjustment)...)
	s.Log.Info("opt-in updated", "profile_id", profileID, "opted_in", optedIn)
	return prof, nil
}

// RecordAction validates and applies one gamified action. Policy rejections come back as
// Applied=false with a Reason; only store failures are errors.
func (s *ProgressionService) RecordAction(ctx context.Context, in RecordActionInput) (*RecordActionResult, error) {
	profileID := strings.TrimSpace(in.ProfileID)
	if profileID == "" {
		return nil, fmt.Errorf("%w: profile_id required", ErrInvalidInput)
	}
	requested := models.ActionType(strings.TrimSpace(string(in.ActionType)))
	now := s.Now().UTC()

	result, err := s.recordAction(ctx, profileID, requested, in, now)
	label := actionLabel(requested)
	switch {
	case err != nil:
		metrics.ActionsTotal.WithLabelValues(label, "error").Inc()
	case !result.Applied:
		metrics.ActionsTotal.WithLabelValues(label, string(result.Reason)).Inc()
	default:
		metrics.ActionsTotal.WithLabelValues(label, "applied").Inc()
	}
	return result, err
}

func (s *ProgressionService) recordAction(ctx context.Context, profileID string, requested models.ActionType, in RecordActionInput, now time.Time) (*RecordActionResult, error) {
	prof, err := s.EnsureProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	if !prof.OptedIn && requested != models.ActionManualAdjustment {
		return s.reject(prof, RejectOptedOut), nil
	}

	actionType, def := definitionFor(s.Actions, requested)

	if in.RequestID != nil && strings.TrimSpace(*in.RequestID) != "" {
		var dupes int64
		err := s.DB.WithContext(ctx).Model(&models.GamificationAction{}).
			Where("profile_id = ? AND request_id = ?", profileID, strings.TrimSpace(*in.RequestID)).
			Count(&dupes).Error
		if err != nil {
			return nil, storeErr("count actions by request id", err)
		}
		if dupes > 0 {
			return s.reject(prof, RejectDuplicateRequest), nil
		}
	}

	// Marker is claimed before the ledger write so a concurrent duplicate also sees it.
	// Atomic on Redis (SET NX PX); only best-effort if the cache backend is down.
	if def.Cooldown > 0 && !s.Cache.SetNX(ctx, cooldownKey(profileID, actionType), now.Unix(), def.Cooldown) {
		return s.reject(prof, RejectCooldown), nil
	}

	if def.MaxDailyOccurrences > 0 {
		var today int64
		err := s.DB.WithContext(ctx).Model(&models.GamificationAction{}).
			Where("profile_id = ? AND action_type = ? AND awarded_at >= ?", profileID, actionType, startOfUTCDay(now)).
			Count(&today).Error
		if err != nil {
			return nil, storeErr("count daily actions", err)
		}
		if today >= int64(def.MaxDailyOccurrences) {
			return s.reject(prof, RejectDailyCap), nil
		}
	}

	xp, points := def.BaseXP, def.BasePoints
	if v, ok := metadataInt(in.Metadata, "xp"); ok {
		xp = v
	}
	if v, ok := metadataInt(in.Metadata, "points"); ok {
		points = v
	}

	levels, err := s.Levels.Table(ctx)
	if err != nil {
		return nil, err
	}

	metadata := datatypes.JSONMap{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	if requested != actionType {
		metadata["requested_action_type"] = string(requested)
	}

	var updated models.GamificationProfile
	var resolution LevelResolution
	previousLevel := prof.Level
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.GamificationProfile
		if err := tx.Where("profile_id = ?", profileID).First(&current).Error; err != nil {
			return storeErr("reload profile", err)
		}
		previousLevel = current.Level

		// The ledger carries what was applied after clamping, so ledger sums match xp_total.
		newXP := addXP(current.XPTotal, xp)
		xp = newXP - current.XPTotal

		entry := models.GamificationAction{
			ID:            uuid.NewString(),
			ProfileID:     profileID,
			ActionType:    actionType,
			ActionSource:  trimmedOrNil(in.ActionSource),
			Metadata:      metadata,
			XPAwarded:     xp,
			PointsAwarded: points,
			AwardedAt:     now,
			RequestID:     trimmedOrNil(in.RequestID),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return storeErr("insert action", err)
		}

		streak := CalculateStreak(StreakInput{
			LastActionAt:  current.LastActionAt,
			ActionAt:      now,
			CurrentStreak: current.CurrentStreak,
			LongestStreak: current.LongestStreak,
			FrozenUntil:   current.StreakFrozenUntil,
		})

		resolution = ResolveLevel(levels, newXP)

		updates := map[string]interface{}{
			"xp_total":       newXP,
			"level":          resolution.Level,
			"current_streak": streak.CurrentStreak,
			"longest_streak": max(current.LongestStreak, streak.LongestStreak),
			"last_action_at": now,
			"updated_at":     now,
		}
		if streak.FreezeUsed {
			updates["streak_frozen_until"] = nil
			current.StreakFrozenUntil = nil
		}
		if err := tx.Model(&models.GamificationProfile{}).Where("profile_id = ?", profileID).Updates(updates).Error; err != nil {
			return storeErr("update profile", err)
		}

		current.XPTotal = newXP
		current.Level = resolution.Level
		current.CurrentStreak = streak.CurrentStreak
		current.LongestStreak = max(current.LongestStreak, streak.LongestStreak)
		lastAction := now
		current.LastActionAt = &lastAction
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Del(ctx, leaderboardKeysFor(actionType)...)
	s.Cache.Del(ctx, profileCacheKey(profileID))

	result := &RecordActionResult{
		Applied:             true,
		XPAwarded:           xp,
		PointsAwarded:       points,
		Level:               resolution,
		LeveledUp:           resolution.Level > previousLevel,
		NewlyEarnedBadges:   []models.Badge{},
		CompletedChallenges: []models.Challenge{},
	}
	cycle := &awardCycle{
		profile:         updated,
		requestedAction: requested,
		action:          actionType,
		now:             now,
		result:          result,
	}
	for _, stage := range []awardStage{
		s.evaluateBadges,
		s.evaluateChallenges,
		s.grantChallengeRewards,
		s.syncRoles,
	} {
		if err := stage(ctx, cycle); err != nil {
			return nil, err
		}
	}
	result.Profile = cycle.profile

	s.Cache.Del(ctx, profileCacheKey(profileID))

	s.Log.Info("🎮 action recorded",
		"profile_id", profileID,
		"action_type", actionType,
		"xp", xp,
		"xp_total", updated.XPTotal,
		"level", updated.Level,
		"streak", updated.CurrentStreak,
		"badges", len(result.NewlyEarnedBadges),
		"challenges", len(result.CompletedChallenges),
	)
	return result, nil
}

// actionLabel keeps the metric's action_type label set bounded.
func actionLabel(a models.ActionType) string {
	if a.Known() {
		return string(a)
	}
	return "unknown"
}

func (s *ProgressionService) reject(prof *models.GamificationProfile, reason RejectReason) *RecordActionResult {
	s.Log.Debug("action rejected", "profile_id", prof.ProfileID, "reason", reason)
	return &RecordActionResult{
		Applied:             false,
		Reason:              reason,
		Profile:             *prof,
		NewlyEarnedBadges:   []models.Badge{},
		CompletedChallenges: []models.Challenge{},
	}
}

func (s *ProgressionService) evaluateBadges(ctx context.Context, cycle *awardCycle) error {
	earned, err := s.Badges.EvaluateAndAward(ctx, &cycle.profile, cycle.requestedAction, cycle.now)
	if err != nil {
		return err
	}
	cycle.result.NewlyEarnedBadges = append(cycle.result.NewlyEarnedBadges, earned...)
	return nil
}

func (s *ProgressionService) evaluateChallenges(ctx context.Context, cycle *awardCycle) error {
	completed, err := s.Challenges.Evaluate(ctx, &cycle.profile, cycle.action, cycle.now)
	if err != nil {
		return err
	}
	cycle.result.CompletedChallenges = append(cycle.result.CompletedChallenges, completed...)
	return nil
}

// grantChallengeRewards awards reward badges of challenges completed this cycle, then
// re-checks challenge_completed badges that could not pass before the challenge stage ran.
func (s *ProgressionService) grantChallengeRewards(ctx context.Context, cycle *awardCycle) error {
	if len(cycle.result.CompletedChallenges) == 0 {
		return nil
	}
	var rewardIDs []string
	for _, ch := range cycle.result.CompletedChallenges {
		if ch.RewardBadgeID != nil && *ch.RewardBadgeID != "" {
			rewardIDs = append(rewardIDs, *ch.RewardBadgeID)
		}
	}
	if len(rewardIDs) > 0 {
		granted, err := s.Badges.AwardByIDs(ctx, cycle.profile.ProfileID, rewardIDs, cycle.now)
		if err != nil {
			return err
		}
		cycle.result.NewlyEarnedBadges = appendNewBadges(cycle.result.NewlyEarnedBadges, granted)
	}

	earned, err := s.Badges.EvaluateAndAward(ctx, &cycle.profile, cycle.requestedAction, cycle.now, models.RequirementChallengeCompleted)
	if err != nil {
		return err
	}
	cycle.result.NewlyEarnedBadges = appendNewBadges(cycle.result.NewlyEarnedBadges, earned)
	return nil
}

func (s *ProgressionService) syncRoles(ctx context.Context, cycle *awardCycle) error {
	added, removed, err := s.Roles.Sync(ctx, &cycle.profile, cycle.result.NewlyEarnedBadges)
	if err != nil {
		return err
	}
	cycle.result.RolesAdded = added
	cycle.result.RolesRemoved = removed
	return nil
}

func appendNewBadges(into []models.Badge, more []models.Badge) []models.Badge {
	seen := make(map[string]struct{}, len(into))
	for _, b := range into {
		seen[b.ID] = struct{}{}
	}
	for _, b := range more {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		into = append(into, b)
	}
	return into
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// IsStoreError reports whether err came from the data store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
