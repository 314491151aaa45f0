// services/scheduler.go
package services

import (
	"context"
	"time"

	"sips-gamification/logger"

	"github.com/go-co-op/gocron/v2"
)

// Maintenance runs the periodic cleanup jobs: expiring progress rows of ended challenges and
// pruning expired leaderboard snapshots.
type Maintenance struct {
	Challenges  *ChallengeService
	Leaderboard *LeaderboardService
	Log         *logger.Logger
	Now         func() time.Time

	sched gocron.Scheduler
}

func NewMaintenance(challenges *ChallengeService, leaderboard *LeaderboardService, log *logger.Logger) *Maintenance {
	return &Maintenance{
		Challenges:  challenges,
		Leaderboard: leaderboard,
		Log:         log.With("service", "Maintenance"),
		Now:         time.Now,
	}
}

// Start schedules both jobs every interval. Call Stop on shutdown.
func (m *Maintenance) Start(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	// Every interval: expire ended challenges
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { m.SweepChallenges(ctx) }),
		gocron.WithName("challenge-expiry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return err
	}

	// Every interval: drop expired leaderboard snapshots
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { m.PruneSnapshots(ctx) }),
		gocron.WithName("snapshot-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return err
	}

	sched.Start()
	m.sched = sched
	return nil
}

func (m *Maintenance) Stop() {
	if m.sched == nil {
		return
	}
	if err := m.sched.Shutdown(); err != nil {
		m.Log.Warn("[Scheduler] shutdown failed", "error", err)
	}
}

func (m *Maintenance) SweepChallenges(ctx context.Context) {
	n, err := m.Challenges.ExpireEnded(ctx, m.Now().UTC())
	if err != nil {
		m.Log.Error("[Scheduler] challenge expiry failed", "error", err)
		return
	}
	if n > 0 {
		m.Log.Info("⏰ expired challenge progress", "rows", n)
	}
}

func (m *Maintenance) PruneSnapshots(ctx context.Context) {
	n, err := m.Leaderboard.PruneExpired(ctx)
	if err != nil {
		m.Log.Error("[Scheduler] snapshot prune failed", "error", err)
		return
	}
	if n > 0 {
		m.Log.Debug("pruned leaderboard snapshots", "rows", n)
	}
}
