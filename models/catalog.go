package models

import "time"

// DefaultLevels is the level table seeded on first boot.
var DefaultLevels = []LevelDefinition{
	{Level: 1, MinXP: 0, Title: "Fresh Brew"},
	{Level: 2, MinXP: 100, Title: "Drip Starter"},
	{Level: 3, MinXP: 250, Title: "Pour Over"},
	{Level: 4, MinXP: 500, Title: "Espresso Apprentice"},
	{Level: 5, MinXP: 900, Title: "Syntax Sipper"},
	{Level: 6, MinXP: 1400, Title: "Code Barista"},
	{Level: 7, MinXP: 2000, Title: "Latte Linter"},
	{Level: 8, MinXP: 2800, Title: "Cold Brew Compiler"},
	{Level: 9, MinXP: 3800, Title: "Roast Master"},
	{Level: 10, MinXP: 5000, Title: "Grand Roaster"},
}

// BadgeSeed is a catalog badge before it has an id.
type BadgeSeed struct {
	Name        string
	Description string
	Category    string
	Rarity      BadgeRarity
	Requirement Requirement
}

// Predefined badges
var DefaultBadges = []BadgeSeed{
	{
		Name:        "Welcome Aboard",
		Description: "Finished onboarding",
		Category:    "community",
		Rarity:      RarityCommon,
		Requirement: EventTrigger(string(ActionOnboardingCompleted)),
	},
	{
		Name:        "First Pour",
		Description: "Published your first post",
		Category:    "writing",
		Rarity:      RarityCommon,
		Requirement: TotalActions(ActionPostPublished, 1),
	},
	{
		Name:        "Prolific Writer",
		Description: "Published 25 posts",
		Category:    "writing",
		Rarity:      RarityRare,
		Requirement: TotalActions(ActionPostPublished, 25),
	},
	{
		Name:        "Conversation Starter",
		Description: "Had 10 comments approved",
		Category:    "community",
		Rarity:      RarityUncommon,
		Requirement: TotalActions(ActionCommentApproved, 10),
	},
	{
		Name:        "Week Warrior",
		Description: "Kept a 7 day streak",
		Category:    "streak",
		Rarity:      RarityUncommon,
		Requirement: StreakDays(7),
	},
	{
		Name:        "Monthly Regular",
		Description: "Kept a 30 day streak",
		Category:    "streak",
		Rarity:      RarityRare,
		Requirement: StreakDays(30),
	},
	{
		Name:        "Halfway Roasted",
		Description: "Reached level 5",
		Category:    "progression",
		Rarity:      RarityUncommon,
		Requirement: LevelReached(5),
	},
	{
		Name:        "Grand Roaster",
		Description: "Reached level 10",
		Category:    "progression",
		Rarity:      RarityLegendary,
		Requirement: LevelReached(10),
	},
	{
		Name:        "Weekly Commenter",
		Description: "Completed the weekly commenter challenge",
		Category:    "challenge",
		Rarity:      RarityRare,
		Requirement: ChallengeCompleted("weekly-commenter"),
	},
	{
		Name:        "Five Day Sprinter",
		Description: "Finished the five day streak challenge",
		Category:    "challenge",
		Rarity:      RarityUncommon,
		Requirement: ChallengeCompleted("five-day-streak"),
	},
}

// ChallengeSeed is a catalog challenge before it has an id and window.
type ChallengeSeed struct {
	Slug            string
	Title           string
	Description     string
	Cadence         ChallengeCadence
	Requirement     Requirement
	RewardPoints    int64
	RewardBadgeSlug string
	Duration        time.Duration
}

var DefaultChallenges = []ChallengeSeed{
	{
		Slug:         "weekly-commenter",
		Title:        "Weekly Commenter",
		Description:  "Get 3 comments approved this week",
		Cadence:      CadenceWeekly,
		Requirement:  TotalActions(ActionCommentApproved, 3),
		RewardPoints: 50,
		Duration:     7 * 24 * time.Hour,
	},
	{
		Slug:         "monthly-author",
		Title:        "Monthly Author",
		Description:  "Publish 4 posts this month",
		Cadence:      CadenceMonthly,
		Requirement:  TotalActions(ActionPostPublished, 4),
		RewardPoints: 150,
		Duration:     30 * 24 * time.Hour,
	},
	{
		Slug:            "five-day-streak",
		Title:           "Five Day Streak",
		Description:     "Stay active five days in a row",
		Cadence:         CadenceWeekly,
		Requirement:     StreakDays(5),
		RewardPoints:    40,
		RewardBadgeSlug: "five-day-sprinter",
		Duration:        7 * 24 * time.Hour,
	},
}

var DefaultRoles = []Role{
	{Slug: "contributor", Name: "Contributor", Description: "Unlocked at level 3"},
	{Slug: "trusted-commenter", Name: "Trusted Commenter", Description: "Comments skip the moderation queue"},
	{Slug: "senior-author", Name: "Senior Author", Description: "Unlocked at level 7"},
	{Slug: "community-champion", Name: "Community Champion", Description: "Earned the weekly commenter badge"},
}

// DefaultRoleRules drives automatic role membership. Roles not named here are never touched
// by role sync.
var DefaultRoleRules = []RoleAssignmentRule{
	{Level: 3, RoleSlug: "contributor"},
	{Level: 7, RoleSlug: "senior-author"},
	{BadgeSlug: "conversation-starter", RoleSlug: "trusted-commenter"},
	{BadgeSlug: "weekly-commenter", RoleSlug: "community-champion"},
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&GamificationProfile{},
		&GamificationAction{},
		&LevelDefinition{},
		&Badge{},
		&OwnedBadge{},
		&Challenge{},
		&ChallengeProgress{},
		&Role{},
		&ProfileRole{},
		&LeaderboardSnapshot{},
	}
}
