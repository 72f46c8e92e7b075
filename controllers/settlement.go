package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wingo/models"
	"wingo/rules"
	"wingo/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Settler drives one claimed round from processing to settled. Every step can
// be re-run after a crash: the outcome is reused once stored, bet results are
// overwritten with identical values, and wallet credits are guarded by the
// round's payoutsApplied marker.
type Settler struct {
	store     store.RoundStore
	oracle    Oracle
	evaluator rules.Evaluator
	clock     Clock
	hub       *models.Hub
	reporter  *Reporter
	log       *zap.SugaredLogger
}

func NewSettler(st store.RoundStore, oracle Oracle, evaluator rules.Evaluator, clock Clock, hub *models.Hub, reporter *Reporter, log *zap.SugaredLogger) *Settler {
	return &Settler{
		store:     st,
		oracle:    oracle,
		evaluator: evaluator,
		clock:     clock,
		hub:       hub,
		reporter:  reporter,
		log:       log,
	}
}

// Settle settles the round if it is processing or closed and returns its
// latest state. Rounds in any other status are returned untouched.
func (s *Settler) Settle(ctx context.Context, roundID primitive.ObjectID) (*models.Round, error) {
	round, err := s.store.RoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != models.StatusProcessing && round.Status != models.StatusClosed {
		return round, nil
	}

	start, game := time.Now(), round.GameCode
	defer func() {
		mtxSettlementDuration.WithLabelValues(game).Observe(time.Since(start).Seconds())
	}()
	log := s.log.With("game", round.GameCode, "period", round.Period, "round", round.ID.Hex())

	if round.Status == models.StatusProcessing {
		won, err := s.close(ctx, round)
		if err != nil {
			return nil, err
		}
		if !won {
			// another pass closed it and owns the rest; recovery covers a crash there
			log.Debugw("round closed elsewhere")
			return s.store.RoundByID(ctx, round.ID)
		}
	}
	outcome, ok := round.Outcome()
	if !ok {
		return nil, fmt.Errorf("round %s is closed without an outcome", round.Period)
	}

	results, summary, err := s.score(ctx, round, outcome)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		if err := s.store.ApplyBetResults(ctx, results); err != nil {
			return nil, fmt.Errorf("write bet results for %s: %w", round.Period, err)
		}
	}

	if !round.PayoutsApplied {
		if err := s.credit(ctx, round, results); err != nil {
			return nil, err
		}
	} else {
		log.Infow("payouts already applied, skipping credits")
	}

	settledAt := s.clock.Now()
	ok, err = s.store.CompareAndSwapStatus(ctx, round.ID, models.StatusClosed, models.StatusSettled, store.Transition{
		At:        settledAt,
		SettledAt: &settledAt,
		Summary:   &summary,
	})
	if err != nil {
		return nil, fmt.Errorf("settle round %s: %w", round.Period, err)
	}
	if !ok {
		log.Debugw("round settled elsewhere")
		return s.store.RoundByID(ctx, round.ID)
	}
	mtxTransitions.WithLabelValues(round.GameCode, string(models.StatusSettled)).Inc()

	round.Status = models.StatusSettled
	round.SettledAt = &settledAt
	round.UpdatedAt = settledAt
	round.PayoutsApplied = true
	round.BetCount = summary.BetCount
	round.TotalStake = summary.TotalStake
	round.TotalPayout = summary.TotalPayout

	log.Infow("round settled", "digit", outcome.Digit, "bets", summary.BetCount, "payout", summary.TotalPayout)
	s.hub.Publish(models.EventRoundSettled, gin.H{
		"gameCode": round.GameCode,
		"round":    round.Public(),
	})
	return round, nil
}

// close resolves the winning digit and moves processing -> closed, updating
// round in place. It reports false when another caller won the CAS.
func (s *Settler) close(ctx context.Context, round *models.Round) (bool, error) {
	outcome, ok := round.Outcome()
	if !ok {
		var err error
		if outcome, err = rules.Classify(s.resolveDigit(ctx, round)); err != nil {
			return false, err
		}
	}

	now := s.clock.Now()
	swapped, err := s.store.CompareAndSwapStatus(ctx, round.ID, models.StatusProcessing, models.StatusClosed, store.Transition{
		At:      now,
		Outcome: &outcome,
	})
	if err != nil {
		return false, fmt.Errorf("close round %s: %w", round.Period, err)
	}
	if !swapped {
		return false, nil
	}
	mtxTransitions.WithLabelValues(round.GameCode, string(models.StatusClosed)).Inc()

	round.Status = models.StatusClosed
	round.UpdatedAt = now
	round.SetOutcome(outcome)
	return true, nil
}

// resolveDigit prefers the operator preset and falls back to the oracle.
func (s *Settler) resolveDigit(ctx context.Context, round *models.Round) int {
	if p := round.PresetDigit; p != nil {
		if *p >= 0 && *p <= 9 {
			return *p
		}
		s.reporter.Report(ctx, "settlement", fmt.Errorf("%w: preset %d", rules.ErrInvalidDigit, *p), map[string]any{
			"round":  round.ID.Hex(),
			"period": round.Period,
		})
	}
	return s.oracle.Draw()
}

// score evaluates every bet on the round. A bet that cannot be evaluated is
// recorded as a loss and reported.
func (s *Settler) score(ctx context.Context, round *models.Round, outcome rules.Outcome) ([]models.BetResult, store.RoundSummary, error) {
	var summary store.RoundSummary
	bets, err := s.store.BetsForRound(ctx, round.ID)
	if err != nil {
		return nil, summary, fmt.Errorf("load bets for %s: %w", round.Period, err)
	}

	totalStake, totalPayout := decimal.Zero, decimal.Zero
	results := make([]models.BetResult, 0, len(bets))
	for _, bet := range bets {
		res, err := s.evaluator.Evaluate(bet.Wager(), outcome.Digit)
		if err != nil {
			mtxBetsSettled.WithLabelValues(round.GameCode, "invalid").Inc()
			s.reporter.Report(ctx, "settlement", err, map[string]any{
				"round":  round.ID.Hex(),
				"period": round.Period,
				"bet":    bet.ID.Hex(),
			})
			res = rules.Result{}
		} else if res.IsWin {
			mtxBetsSettled.WithLabelValues(round.GameCode, "win").Inc()
		} else {
			mtxBetsSettled.WithLabelValues(round.GameCode, "loss").Inc()
		}

		totalStake = totalStake.Add(decimal.NewFromFloat(bet.Amount))
		totalPayout = totalPayout.Add(res.Payout)
		results = append(results, models.BetResult{
			BetID:        bet.ID,
			UserID:       bet.UserID,
			IsWin:        res.IsWin,
			PayoutAmount: res.Payout.InexactFloat64(),
		})
	}

	summary.BetCount = len(bets)
	summary.TotalStake = totalStake.Round(2).InexactFloat64()
	summary.TotalPayout = totalPayout.Round(2).InexactFloat64()
	return results, summary, nil
}

// credit coalesces winning payouts into one increment per user, applies them
// in one batch and then flips payoutsApplied.
func (s *Settler) credit(ctx context.Context, round *models.Round, results []models.BetResult) error {
	perUser := make(map[primitive.ObjectID]decimal.Decimal)
	total := decimal.Zero
	for _, res := range results {
		if !res.IsWin || res.PayoutAmount <= 0 {
			continue
		}
		amount := decimal.NewFromFloat(res.PayoutAmount)
		perUser[res.UserID] = perUser[res.UserID].Add(amount)
		total = total.Add(amount)
	}

	if len(perUser) > 0 {
		credits := make(map[primitive.ObjectID]float64, len(perUser))
		for user, amount := range perUser {
			credits[user] = amount.Round(2).InexactFloat64()
		}
		if err := s.store.CreditWallets(ctx, credits); err != nil {
			return fmt.Errorf("credit wallets for %s: %w", round.Period, err)
		}
		mtxPayoutCredited.WithLabelValues(round.GameCode).Add(total.InexactFloat64())
	}

	if _, err := s.store.MarkPayoutsApplied(ctx, round.ID, s.clock.Now()); err != nil {
		return fmt.Errorf("mark payouts for %s: %w", round.Period, err)
	}
	return nil
}

// ErrRoundNotClaimable is returned by SettleManually for rounds that are
// still taking bets.
var ErrRoundNotClaimable = errors.New("round is not ready for settlement")

// SettleManually re-enters settlement for one round from the CLI. An open
// round whose window has ended is claimed first.
func (s *Settler) SettleManually(ctx context.Context, roundID primitive.ObjectID, lockedBy string) (*models.Round, error) {
	round, err := s.store.RoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if round.Status == models.StatusScheduled || round.Status == models.StatusOpen {
		if now.Before(round.EndsAt) {
			return round, ErrRoundNotClaimable
		}
		ok, err := s.store.CompareAndSwapStatus(ctx, round.ID, round.Status, models.StatusProcessing, store.Transition{At: now, LockedBy: lockedBy})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, store.ErrConflict
		}
	}
	return s.Settle(ctx, roundID)
}
