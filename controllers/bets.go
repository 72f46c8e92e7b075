package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wingo/models"
	"wingo/rules"
	"wingo/store"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrBettingClosed = errors.New("betting is closed for this round")
	ErrBetTooEarly   = errors.New("round has not started")
)

// BetRequest is the client payload for placing a bet. Exactly one choice field
// must be set and it must match Category.
type BetRequest struct {
	RoundID        string  `json:"roundId" binding:"required"`
	Category       string  `json:"betType" binding:"required"`
	ChoiceBigSmall string  `json:"choiceBigSmall"`
	ChoiceColor    string  `json:"choiceColor"`
	ChoiceNumber   *int    `json:"choiceNumber"`
	Amount         float64 `json:"amount" binding:"required"`
}

// BetService accepts wagers for open rounds. Debiting the stake is a
// conditional decrement on the wallet; the debit is refunded if the bet
// cannot be stored.
type BetService struct {
	store  store.RoundStore
	clock  Clock
	cutoff time.Duration
	log    *zap.SugaredLogger
}

func NewBetService(st store.RoundStore, clock Clock, cutoff time.Duration, log *zap.SugaredLogger) *BetService {
	return &BetService{store: st, clock: clock, cutoff: cutoff, log: log}
}

// Cutoff is how long before endsAt intake stops.
func (b *BetService) Cutoff() time.Duration { return b.cutoff }

// ParseBet validates a request into a stored-bet shape with one choice.
func ParseBet(req BetRequest) (*models.Bet, primitive.ObjectID, error) {
	roundID, err := primitive.ObjectIDFromHex(req.RoundID)
	if err != nil {
		return nil, primitive.NilObjectID, fmt.Errorf("%w: round id %q", rules.ErrInvalidBet, req.RoundID)
	}
	category, ok := rules.ParseCategory(req.Category)
	if !ok {
		return nil, roundID, fmt.Errorf("%w: bet type %q", rules.ErrInvalidBet, req.Category)
	}
	amount := decimal.NewFromFloat(req.Amount)
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, roundID, fmt.Errorf("%w: amount must be positive with at most two decimals", rules.ErrInvalidBet)
	}

	bet := &models.Bet{RoundID: roundID, Category: category, Amount: req.Amount}
	switch category {
	case rules.CategorySize:
		size, ok := rules.ParseSize(req.ChoiceBigSmall)
		if !ok || req.ChoiceColor != "" || req.ChoiceNumber != nil {
			return nil, roundID, fmt.Errorf("%w: %s needs choiceBigSmall big or small only", rules.ErrInvalidBet, category)
		}
		bet.ChoiceSize = &size
	case rules.CategoryColor:
		color, ok := rules.ParseChoiceColor(req.ChoiceColor)
		if !ok || req.ChoiceBigSmall != "" || req.ChoiceNumber != nil {
			return nil, roundID, fmt.Errorf("%w: %s needs choiceColor red, green or violet only", rules.ErrInvalidBet, category)
		}
		bet.ChoiceColor = &color
	case rules.CategoryNumber:
		n := req.ChoiceNumber
		if n == nil || *n < 0 || *n > 9 || req.ChoiceBigSmall != "" || req.ChoiceColor != "" {
			return nil, roundID, fmt.Errorf("%w: %s needs choiceNumber 0-9 only", rules.ErrInvalidBet, category)
		}
		v := *n
		bet.ChoiceNumber = &v
	}
	return bet, roundID, nil
}

// PlaceBet validates the round window, debits the stake and stores the bet.
func (b *BetService) PlaceBet(ctx context.Context, userID primitive.ObjectID, req BetRequest) (*models.Bet, error) {
	bet, roundID, err := ParseBet(req)
	if err != nil {
		mtxBetRejections.WithLabelValues("invalid").Inc()
		return nil, err
	}

	round, err := b.store.RoundByID(ctx, roundID)
	if err != nil {
		mtxBetRejections.WithLabelValues("round").Inc()
		return nil, err
	}
	now := b.clock.Now()
	if round.Status != models.StatusOpen || !now.Before(round.EndsAt) || now.After(round.BettingDeadline(b.cutoff)) {
		mtxBetRejections.WithLabelValues("closed").Inc()
		return nil, ErrBettingClosed
	}
	if now.Before(round.StartsAt) {
		mtxBetRejections.WithLabelValues("early").Inc()
		return nil, ErrBetTooEarly
	}

	if err := b.store.DebitWallet(ctx, userID, bet.Amount); err != nil {
		mtxBetRejections.WithLabelValues("funds").Inc()
		return nil, err
	}

	bet.UserID = userID
	bet.GameCode = round.GameCode
	bet.Period = round.Period
	bet.CreatedAt = now
	if err := b.store.InsertBet(ctx, bet); err != nil {
		if rerr := b.store.CreditWallets(ctx, map[primitive.ObjectID]float64{userID: bet.Amount}); rerr != nil {
			b.log.Errorw("refund after failed bet insert", "user", userID.Hex(), "amount", bet.Amount, "err", rerr)
		}
		return nil, fmt.Errorf("store bet: %w", err)
	}

	mtxBetsPlaced.WithLabelValues(round.GameCode, string(bet.Category)).Inc()
	b.log.Debugw("bet placed", "game", round.GameCode, "period", round.Period, "user", userID.Hex(), "type", bet.Category, "amount", bet.Amount)
	return bet, nil
}
