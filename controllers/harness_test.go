package controllers

import (
	"context"
	"sync"
	"testing"
	"time"

	"wingo/config"
	"wingo/models"
	"wingo/rules"
	"wingo/store"
	"wingo/window"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(t time.Time) *manualClock { return &manualClock{now: t.UTC()} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var oneMinute = models.Game{Name: "WinGo 1 min", GameCode: "10001", DurationSeconds: 60, IsActive: true}

func testConfig() *config.Config {
	return &config.Config{
		Store:                  config.StoreMemory,
		TickInterval:           time.Second,
		StaleAfter:             30 * time.Second,
		BackfillGrace:          10 * time.Second,
		BackfillLimit:          500,
		BetCutoff:              15 * time.Second,
		ServiceFeeRate:         rules.DefaultFeeRate,
		AllowMultiCategoryBets: true,
		Games:                  []models.Game{oneMinute},
	}
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *store.Memory
	clock *manualClock
	comps *Components
}

// newHarness wires the service graph over a memory store. The oracle always
// draws 3 unless a round carries a preset.
func newHarness(t *testing.T, now time.Time, games ...models.Game) *harness {
	t.Helper()
	if len(games) == 0 {
		games = []models.Game{oneMinute}
	}
	st := store.NewMemory()
	ctx := context.Background()
	for _, g := range games {
		require.NoError(t, st.UpsertGame(ctx, g))
	}
	clock := newManualClock(now)
	comps := InitWith(testConfig(), st, clock, OracleFunc(func() int { return 3 }), zap.NewNop().Sugar())
	return &harness{t: t, ctx: ctx, store: st, clock: clock, comps: comps}
}

func (h *harness) user(balance float64) primitive.ObjectID {
	return h.store.PutUser(models.User{WalletBalance: balance}).ID
}

func (h *harness) wallet(id primitive.ObjectID) float64 {
	u, err := h.store.Wallet(h.ctx, id)
	require.NoError(h.t, err)
	return u.WalletBalance
}

// round stores a round for the window containing at.
func (h *harness) round(g models.Game, at time.Time, status models.RoundStatus) *models.Round {
	w, err := window.Compute(g.DurationSeconds, g.GameCode, at)
	require.NoError(h.t, err)
	r := &models.Round{
		GameCode:  g.GameCode,
		Period:    w.Period,
		StartsAt:  w.StartsAt,
		EndsAt:    w.EndsAt,
		Status:    status,
		CreatedAt: w.StartsAt,
		UpdatedAt: w.StartsAt,
	}
	require.NoError(h.t, h.store.CreateRound(h.ctx, r))
	return r
}

func (h *harness) reload(id primitive.ObjectID) *models.Round {
	r, err := h.store.RoundByID(h.ctx, id)
	require.NoError(h.t, err)
	return r
}

func (h *harness) bet(round *models.Round, user primitive.ObjectID, category rules.Category, choice any, amount float64) *models.Bet {
	b := &models.Bet{
		UserID:   user,
		RoundID:  round.ID,
		GameCode: round.GameCode,
		Period:   round.Period,
		Category: category,
		Amount:   amount,
	}
	switch v := choice.(type) {
	case rules.Size:
		b.ChoiceSize = &v
	case rules.Color:
		b.ChoiceColor = &v
	case int:
		b.ChoiceNumber = &v
	}
	require.NoError(h.t, h.store.InsertBet(h.ctx, b))
	return b
}

func (h *harness) betByID(round *models.Round, id primitive.ObjectID) models.Bet {
	bets, err := h.store.BetsForRound(h.ctx, round.ID)
	require.NoError(h.t, err)
	for _, b := range bets {
		if b.ID == id {
			return b
		}
	}
	h.t.Fatalf("bet %s not found", id.Hex())
	return models.Bet{}
}

func (h *harness) preset(r *models.Round, digit int) {
	require.NoError(h.t, h.store.SetPresetDigit(h.ctx, r.ID, digit))
}

// drain returns the events published on the hub so far.
func (h *harness) drain() []models.WSMessage {
	var out []models.WSMessage
	for {
		select {
		case m := <-h.comps.Hub.Broadcast:
			out = append(out, m)
		default:
			return out
		}
	}
}

func eventNames(msgs []models.WSMessage) []string {
	names := make([]string, 0, len(msgs))
	for _, m := range msgs {
		names = append(names, m.Event)
	}
	return names
}

func money(v string) float64 {
	return decimal.RequireFromString(v).InexactFloat64()
}
