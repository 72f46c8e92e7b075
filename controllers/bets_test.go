package controllers

import (
	"context"
	"errors"
	"testing"
	"time"

	"wingo/models"
	"wingo/rules"
	"wingo/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func TestParseBet(t *testing.T) {
	roundID := primitive.NewObjectID().Hex()
	tests := []struct {
		name    string
		req     BetRequest
		wantErr bool
	}{
		{"big", BetRequest{RoundID: roundID, Category: "big_small", ChoiceBigSmall: "big", Amount: 10}, false},
		{"green", BetRequest{RoundID: roundID, Category: "COLOR", ChoiceColor: "green", Amount: 10}, false},
		{"zero is a number", BetRequest{RoundID: roundID, Category: "number", ChoiceNumber: intPtr(0), Amount: 0.5}, false},
		{"bad round id", BetRequest{RoundID: "nope", Category: "number", ChoiceNumber: intPtr(1), Amount: 10}, true},
		{"unknown type", BetRequest{RoundID: roundID, Category: "parity", Amount: 10}, true},
		{"negative amount", BetRequest{RoundID: roundID, Category: "number", ChoiceNumber: intPtr(1), Amount: -1}, true},
		{"sub-cent amount", BetRequest{RoundID: roundID, Category: "number", ChoiceNumber: intPtr(1), Amount: 0.001}, true},
		{"number out of range", BetRequest{RoundID: roundID, Category: "number", ChoiceNumber: intPtr(10), Amount: 10}, true},
		{"missing number", BetRequest{RoundID: roundID, Category: "number", Amount: 10}, true},
		{"outcome-only color", BetRequest{RoundID: roundID, Category: "color", ChoiceColor: "red_violet", Amount: 10}, true},
		{"two choices", BetRequest{RoundID: roundID, Category: "color", ChoiceColor: "red", ChoiceBigSmall: "big", Amount: 10}, true},
		{"size choice mismatched", BetRequest{RoundID: roundID, Category: "big_small", ChoiceBigSmall: "huge", Amount: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bet, _, err := ParseBet(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, rules.ErrInvalidBet)
				return
			}
			require.NoError(t, err)
			_, err = rules.NewEvaluator(false).Evaluate(bet.Wager(), 5)
			assert.NoError(t, err, "parsed bets always score in single-category mode")
		})
	}
}

func TestPlaceBet(t *testing.T) {
	h := newHarness(t, t0.Add(20*time.Second))
	r := h.round(oneMinute, t0, models.StatusOpen)
	alice := h.user(100)

	bet, err := h.comps.Bets.PlaceBet(h.ctx, alice, BetRequest{
		RoundID: r.ID.Hex(), Category: "color", ChoiceColor: "green", Amount: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, r.Period, bet.Period)
	assert.Equal(t, oneMinute.GameCode, bet.GameCode)
	assert.Equal(t, alice, bet.UserID)
	assert.Equal(t, rules.ColorGreen, *bet.ChoiceColor)
	assert.Equal(t, 60.0, h.wallet(alice))

	stored, err := h.store.BetsForRound(h.ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].IsWin)
}

func TestPlaceBet_Rejections(t *testing.T) {
	h := newHarness(t, t0.Add(20*time.Second))
	open := h.round(oneMinute, t0, models.StatusOpen)
	staged := h.round(oneMinute, t0.Add(time.Minute), models.StatusScheduled)
	alice := h.user(50)

	req := func(r *models.Round, amount float64) BetRequest {
		return BetRequest{RoundID: r.ID.Hex(), Category: "number", ChoiceNumber: intPtr(4), Amount: amount}
	}

	_, err := h.comps.Bets.PlaceBet(h.ctx, alice, req(open, 80))
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)

	_, err = h.comps.Bets.PlaceBet(h.ctx, alice, req(staged, 10))
	assert.ErrorIs(t, err, ErrBettingClosed)

	_, err = h.comps.Bets.PlaceBet(h.ctx, alice, BetRequest{RoundID: primitive.NewObjectID().Hex(), Category: "number", ChoiceNumber: intPtr(1), Amount: 10})
	assert.ErrorIs(t, err, store.ErrNotFound)

	// 15s cutoff: the last accepted instant is endsAt-15s
	h.clock.Set(open.EndsAt.Add(-15 * time.Second))
	_, err = h.comps.Bets.PlaceBet(h.ctx, alice, req(open, 10))
	assert.NoError(t, err)

	h.clock.Set(open.EndsAt.Add(-14 * time.Second))
	_, err = h.comps.Bets.PlaceBet(h.ctx, alice, req(open, 10))
	assert.ErrorIs(t, err, ErrBettingClosed)

	assert.Equal(t, 40.0, h.wallet(alice), "only the accepted bet was debited")
}

type failingBets struct {
	*store.Memory
}

func (failingBets) InsertBet(context.Context, *models.Bet) error {
	return errors.New("write concern timeout")
}

func TestPlaceBet_RefundsWhenInsertFails(t *testing.T) {
	h := newHarness(t, t0.Add(20*time.Second))
	r := h.round(oneMinute, t0, models.StatusOpen)
	alice := h.user(100)

	svc := NewBetService(failingBets{h.store}, h.clock, 15*time.Second, zap.NewNop().Sugar())
	_, err := svc.PlaceBet(h.ctx, alice, BetRequest{RoundID: r.ID.Hex(), Category: "big_small", ChoiceBigSmall: "small", Amount: 25})
	require.Error(t, err)
	assert.Equal(t, 100.0, h.wallet(alice))
}
