// controllers/roundManager.go
package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wingo/models"
	"wingo/store"
	"wingo/window"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SchedulerConfig tunes the tick loop.
type SchedulerConfig struct {
	Interval time.Duration
	// StaleAfter is how long a processing or closed round may sit untouched
	// before another pass re-claims it.
	StaleAfter time.Duration
	// BackfillGrace is how far past endsAt a scheduled or open round may be
	// before recovery force-locks it.
	BackfillGrace time.Duration
	// BackfillLimit caps missed windows recreated per game per tick.
	BackfillLimit int
}

// Scheduler advances every active game variant once per tick. All cross-process
// exclusion goes through store.CompareAndSwapStatus and the unique period
// index, so any number of schedulers may run against one store.
type Scheduler struct {
	store    store.RoundStore
	settler  *Settler
	clock    Clock
	hub      *models.Hub
	reporter *Reporter
	log      *zap.SugaredLogger
	cfg      SchedulerConfig

	instanceID string
	busy       atomic.Bool
	wg         sync.WaitGroup
}

func NewScheduler(st store.RoundStore, settler *Settler, clock Clock, hub *models.Hub, reporter *Reporter, log *zap.SugaredLogger, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:      st,
		settler:    settler,
		clock:      clock,
		hub:        hub,
		reporter:   reporter,
		log:        log,
		cfg:        cfg,
		instanceID: uuid.NewString(),
	}
}

// InstanceID is stamped as lockedBy on every round this scheduler claims.
func (s *Scheduler) InstanceID() string { return s.instanceID }

// Start ticks until ctx is done, then waits for the running tick to finish.
// A tick that overruns the interval causes later firings to be skipped.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Infow("scheduler started", "instance", s.instanceID, "interval", s.cfg.Interval)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.launch(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Infow("scheduler stopped", "instance", s.instanceID)
			return
		case <-ticker.C:
			s.launch(ctx)
		}
	}
}

func (s *Scheduler) launch(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(ctx)
	}()
}

// Tick runs one pass over every active game and reports whether it ran.
// It returns false without doing anything while a previous tick is in flight.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		mtxTicks.WithLabelValues("skipped").Inc()
		return false
	}
	defer s.busy.Store(false)

	start := time.Now()
	defer func() { mtxTickDuration.Observe(time.Since(start).Seconds()) }()
	mtxTicks.WithLabelValues("ran").Inc()

	games, err := s.store.ActiveGames(ctx)
	if err != nil {
		s.log.Warnw("tick: load games", "err", err)
		return true
	}

	var wg sync.WaitGroup
	for _, game := range games {
		wg.Add(1)
		go func(g models.Game) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.reporter.Report(ctx, "scheduler", fmt.Errorf("panic: %v", r), map[string]any{"game": g.GameCode})
				}
			}()
			if err := s.runGame(ctx, g); err != nil {
				s.reporter.Report(ctx, "scheduler", err, map[string]any{"game": g.GameCode})
			}
		}(game)
	}
	wg.Wait()
	return true
}

// runGame is one game's share of a tick. A store error aborts this game only;
// the next tick retries from scratch.
func (s *Scheduler) runGame(ctx context.Context, g models.Game) error {
	now := s.clock.Now()
	if err := s.recoverStale(ctx, g, now); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	if err := s.backfill(ctx, g, now); err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	if err := s.ensureCurrentRound(ctx, g, now); err != nil {
		return fmt.Errorf("ensure current: %w", err)
	}
	if err := s.lockExpired(ctx, g, now); err != nil {
		return fmt.Errorf("lock expired: %w", err)
	}
	return nil
}

// recoverStale re-claims rounds abandoned mid-settlement and force-locks rounds
// whose whole window passed while nobody was ticking.
func (s *Scheduler) recoverStale(ctx context.Context, g models.Game, now time.Time) error {
	staleBefore := now.Add(-s.cfg.StaleAfter)
	stuck, err := s.store.FindRounds(ctx, store.RoundQuery{
		GameCode:      g.GameCode,
		Statuses:      []models.RoundStatus{models.StatusProcessing, models.StatusClosed},
		UpdatedBefore: &staleBefore,
	})
	if err != nil {
		return err
	}
	for _, r := range stuck {
		// same-status CAS with a staleness guard: only one recoverer wins
		ok, err := s.store.CompareAndSwapStatus(ctx, r.ID, r.Status, r.Status, store.Transition{
			At:          now,
			LockedBy:    s.instanceID,
			StaleBefore: &staleBefore,
		})
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		s.log.Infow("recovering stale round", "game", g.GameCode, "period", r.Period, "status", r.Status, "lockedBy", r.LockedBy)
		mtxRecovered.WithLabelValues(g.GameCode, "stale").Inc()
		s.settle(ctx, r)
	}

	overdueBefore := now.Add(-s.cfg.BackfillGrace)
	overdue, err := s.store.FindRounds(ctx, store.RoundQuery{
		GameCode:    g.GameCode,
		Statuses:    []models.RoundStatus{models.StatusScheduled, models.StatusOpen},
		EndedBefore: &overdueBefore,
	})
	if err != nil {
		return err
	}
	for _, r := range overdue {
		if s.claim(ctx, r, r.Status, now) {
			mtxRecovered.WithLabelValues(g.GameCode, "overdue").Inc()
			s.settle(ctx, r)
		}
	}
	return nil
}

// backfill recreates windows between the newest round that started before the
// current window and the current window. A game with no earlier rounds starts
// fresh at the current window.
func (s *Scheduler) backfill(ctx context.Context, g models.Game, now time.Time) error {
	current, err := window.Compute(g.DurationSeconds, g.GameCode, now)
	if err != nil {
		return err
	}
	previous, err := s.store.FindRounds(ctx, store.RoundQuery{
		GameCode:      g.GameCode,
		StartedBefore: &current.StartsAt,
		Newest:        true,
		Limit:         1,
	})
	if err != nil {
		return err
	}
	if len(previous) == 0 {
		return nil
	}

	missed, err := window.Between(g.DurationSeconds, g.GameCode, previous[0].EndsAt, current.StartsAt, s.cfg.BackfillLimit)
	if err != nil {
		return err
	}
	for _, w := range missed {
		// open with endsAt in the past: lockExpired claims it this same tick
		created, _, err := s.createRound(ctx, g, w, models.StatusOpen, now)
		if err != nil {
			return err
		}
		if created {
			mtxBackfilled.WithLabelValues(g.GameCode).Inc()
		}
	}
	if len(missed) > 0 {
		s.log.Infow("backfilled missed windows", "game", g.GameCode, "count", len(missed), "from", missed[0].Period)
	}
	return nil
}

// ensureCurrentRound makes sure the window containing now has an open round
// and that the following window is staged as scheduled.
func (s *Scheduler) ensureCurrentRound(ctx context.Context, g models.Game, now time.Time) error {
	w, err := window.Compute(g.DurationSeconds, g.GameCode, now)
	if err != nil {
		return err
	}

	created, round, err := s.createRound(ctx, g, w, models.StatusOpen, now)
	if err != nil {
		return err
	}
	if created {
		s.opened(round)
	} else if round.Status == models.StatusScheduled && !now.Before(round.StartsAt) {
		ok, err := s.store.CompareAndSwapStatus(ctx, round.ID, models.StatusScheduled, models.StatusOpen, store.Transition{At: now})
		if err != nil {
			return err
		}
		if ok {
			mtxTransitions.WithLabelValues(g.GameCode, string(models.StatusOpen)).Inc()
			round.Status = models.StatusOpen
			s.opened(round)
		}
	}

	next, err := window.Next(g.DurationSeconds, g.GameCode, w)
	if err != nil {
		return err
	}
	_, _, err = s.createRound(ctx, g, next, models.StatusScheduled, now)
	return err
}

// createRound inserts the round for w unless its period exists. It returns the
// stored round either way; created reports whether this call inserted it.
func (s *Scheduler) createRound(ctx context.Context, g models.Game, w window.Window, status models.RoundStatus, now time.Time) (bool, *models.Round, error) {
	existing, err := s.store.RoundByPeriod(ctx, w.Period)
	if err == nil {
		return false, existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, nil, err
	}

	round := &models.Round{
		GameCode:  g.GameCode,
		Period:    w.Period,
		StartsAt:  w.StartsAt,
		EndsAt:    w.EndsAt,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.CreateRound(ctx, round)
	if errors.Is(err, store.ErrDuplicatePeriod) {
		// lost the creation race; use the winner's document
		existing, err := s.store.RoundByPeriod(ctx, w.Period)
		return false, existing, err
	}
	if err != nil {
		return false, nil, err
	}
	s.log.Debugw("round created", "game", g.GameCode, "period", w.Period, "status", status)
	return true, round, nil
}

// lockExpired claims every open or never-promoted scheduled round whose window
// has ended and settles it.
func (s *Scheduler) lockExpired(ctx context.Context, g models.Game, now time.Time) error {
	expired, err := s.store.FindRounds(ctx, store.RoundQuery{
		GameCode:    g.GameCode,
		Statuses:    []models.RoundStatus{models.StatusScheduled, models.StatusOpen},
		EndedBefore: &now,
	})
	if err != nil {
		return err
	}
	for _, r := range expired {
		if s.claim(ctx, r, r.Status, now) {
			s.settle(ctx, r)
		}
	}
	return nil
}

// claim moves a round to processing. Losing the CAS is not an error.
func (s *Scheduler) claim(ctx context.Context, r models.Round, from models.RoundStatus, now time.Time) bool {
	ok, err := s.store.CompareAndSwapStatus(ctx, r.ID, from, models.StatusProcessing, store.Transition{
		At:       now,
		LockedBy: s.instanceID,
	})
	if err != nil {
		s.log.Warnw("claim round", "game", r.GameCode, "period", r.Period, "err", err)
		return false
	}
	if !ok {
		return false
	}
	mtxTransitions.WithLabelValues(r.GameCode, string(models.StatusProcessing)).Inc()
	s.hub.Publish(models.EventRoundLocked, gin.H{
		"gameCode": r.GameCode,
		"period":   r.Period,
		"endsAt":   r.EndsAt,
	})
	return true
}

// settle runs settlement for a claimed round. A failure leaves the round in
// processing or closed for the recovery sweep.
func (s *Scheduler) settle(ctx context.Context, r models.Round) {
	if _, err := s.settler.Settle(ctx, r.ID); err != nil {
		s.reporter.Report(ctx, "settlement", err, map[string]any{
			"game":   r.GameCode,
			"period": r.Period,
			"round":  r.ID.Hex(),
		})
	}
}

func (s *Scheduler) opened(r *models.Round) {
	s.log.Infow("round opened", "game", r.GameCode, "period", r.Period, "endsAt", r.EndsAt)
	s.hub.Publish(models.EventRoundOpened, gin.H{
		"gameCode": r.GameCode,
		"round":    r.Public(),
	})
}
