package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "sips"
	subsystem = "gamification"
)

var (
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "actions_total",
			Help:      "Recorded actions by type and outcome (applied, rejected reason, error)",
		},
		[]string{"action_type", "outcome"},
	)
	BadgesAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "badges_awarded_total",
			Help:      "Badges newly awarded",
		},
		[]string{"badge"},
	)
	ChallengesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "challenges_completed_total",
			Help:      "Challenges completed",
		},
		[]string{"challenge"},
	)
	LeaderboardReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "leaderboard_reads_total",
			Help:      "Leaderboard reads by serving tier (cache, snapshot, live)",
		},
		[]string{"tier"},
	)
)
