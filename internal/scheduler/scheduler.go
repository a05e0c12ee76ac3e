// Package scheduler wires up the cron job that periodically runs the poll
// cycle for every enabled account.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
)

// lockTTL must outlast a worst-case account cycle (20 retries x 2 s per call
// plus contact pacing).
const lockTTL = 30 * time.Minute

// AccountSource lists the accounts due for scraping.
type AccountSource interface {
	ListEnabled(ctx context.Context) ([]*model.Account, error)
}

// Runner executes one account cycle.
type Runner interface {
	Run(ctx context.Context, account *model.Account) (bool, int)
}

// Scheduler drives the scrape loop on a fixed cadence. A per-account redis
// lock keeps overlapping cron fires from running the same account twice.
type Scheduler struct {
	cron     *cron.Cron
	accounts AccountSource
	runner   Runner
	rdb      *redis.Client
	spec     string
	log      *slog.Logger
}

// New creates a Scheduler that fires every intervalMinutes minutes.
func New(accounts AccountSource, runner Runner, rdb *redis.Client, intervalMinutes int, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		accounts: accounts,
		runner:   runner,
		rdb:      rdb,
		spec:     fmt.Sprintf("@every %dm", intervalMinutes),
		log:      log.With(slog.String("component", "scheduler")),
	}
}

// Start registers the job and starts the scheduler. Also runs one cycle
// immediately so a fresh deployment does not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", slog.String("spec", s.spec))

	go s.runCycle(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("cron stopped")
}

// runCycle loads all enabled accounts and runs each one sequentially,
// continuing past per-account failures.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.log.Info("scrape cycle started")

	accounts, err := s.accounts.ListEnabled(ctx)
	if err != nil {
		s.log.Error("loading accounts failed", slog.String("error", err.Error()))
		return
	}
	if len(accounts) == 0 {
		s.log.Info("no enabled accounts, nothing to scrape")
		return
	}

	var okCount, newOffers int
	for _, account := range accounts {
		unlock, acquired := s.lock(ctx, account.ID)
		if !acquired {
			s.log.Warn("account cycle already running, skipping",
				slog.String("email", account.Email))
			continue
		}

		ok, n := s.runner.Run(ctx, account)
		unlock()

		if ok {
			okCount++
		}
		newOffers += n
	}

	s.log.Info("scrape cycle complete",
		slog.Int("accounts", len(accounts)),
		slog.Int("succeeded", okCount),
		slog.Int("new_offers", newOffers))
}

// lock takes the per-account cycle lock. The returned unlock releases it;
// acquired is false when another cycle still holds it.
func (s *Scheduler) lock(ctx context.Context, accountID string) (unlock func(), acquired bool) {
	key := "scrape:lock:" + accountID

	ok, err := s.rdb.SetNX(ctx, key, time.Now().Format(time.RFC3339), lockTTL).Result()
	if err != nil {
		// Redis being down should not stall scraping; run without the lock.
		s.log.Error("cycle lock unavailable, continuing without it",
			slog.String("error", err.Error()))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() { s.rdb.Del(ctx, key) }, true
}
