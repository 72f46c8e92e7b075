package store

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wingo/models"
	"wingo/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var t0 = time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

func newRound(period string, status models.RoundStatus, startsAt time.Time) *models.Round {
	return &models.Round{
		GameCode:  "10001",
		Period:    period,
		StartsAt:  startsAt,
		EndsAt:    startsAt.Add(time.Minute),
		Status:    status,
		CreatedAt: startsAt,
		UpdatedAt: startsAt,
	}
}

func TestMemory_CreateRound_DuplicatePeriod(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateRound(ctx, newRound("P1", models.StatusOpen, t0)))
	err := m.CreateRound(ctx, newRound("P1", models.StatusScheduled, t0))
	assert.ErrorIs(t, err, ErrDuplicatePeriod)

	got, err := m.RoundByPeriod(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestMemory_CompareAndSwap_ExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := newRound("P1", models.StatusOpen, t0)
	require.NoError(t, m.CreateRound(ctx, r))

	const callers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.CompareAndSwapStatus(ctx, r.ID, models.StatusOpen, models.StatusProcessing, Transition{At: t0.Add(time.Minute)})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := m.RoundByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
}

func TestMemory_CompareAndSwap_WritesTransitionFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := newRound("P1", models.StatusProcessing, t0)
	require.NoError(t, m.CreateRound(ctx, r))

	outcome, err := rules.Classify(7)
	require.NoError(t, err)
	at := t0.Add(2 * time.Minute)
	ok, err := m.CompareAndSwapStatus(ctx, r.ID, models.StatusProcessing, models.StatusClosed, Transition{
		At:       at,
		Outcome:  &outcome,
		LockedBy: "node-a",
		Summary:  &RoundSummary{BetCount: 3, TotalStake: 300, TotalPayout: 196},
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := m.RoundByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OutcomeDigit)
	assert.Equal(t, 7, *got.OutcomeDigit)
	assert.Equal(t, rules.SizeBig, *got.OutcomeSize)
	assert.Equal(t, rules.ColorGreen, *got.OutcomeColor)
	assert.Equal(t, "node-a", got.LockedBy)
	assert.Equal(t, 3, got.BetCount)
	assert.Equal(t, at, got.UpdatedAt)
}

func TestMemory_CompareAndSwap_StaleGuard(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := newRound("P1", models.StatusClosed, t0)
	require.NoError(t, m.CreateRound(ctx, r))

	notStale := t0
	ok, err := m.CompareAndSwapStatus(ctx, r.ID, models.StatusClosed, models.StatusClosed, Transition{At: t0.Add(time.Hour), StaleBefore: &notStale})
	require.NoError(t, err)
	assert.False(t, ok, "updatedAt equal to the cutoff is not stale")

	cutoff := t0.Add(time.Second)
	ok, err = m.CompareAndSwapStatus(ctx, r.ID, models.StatusClosed, models.StatusClosed, Transition{At: t0.Add(time.Hour), StaleBefore: &cutoff})
	require.NoError(t, err)
	assert.True(t, ok)

	// the re-claim bumped updatedAt, so a second recoverer loses
	ok, err = m.CompareAndSwapStatus(ctx, r.ID, models.StatusClosed, models.StatusClosed, Transition{At: t0.Add(time.Hour), StaleBefore: &cutoff})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_FindRounds(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateRound(ctx, newRound("A", models.StatusSettled, t0)))
	require.NoError(t, m.CreateRound(ctx, newRound("B", models.StatusOpen, t0.Add(time.Minute))))
	require.NoError(t, m.CreateRound(ctx, newRound("C", models.StatusOpen, t0.Add(2*time.Minute))))
	other := newRound("D", models.StatusOpen, t0)
	other.GameCode = "10005"
	require.NoError(t, m.CreateRound(ctx, other))

	ended := t0.Add(2 * time.Minute)
	rounds, err := m.FindRounds(ctx, RoundQuery{
		GameCode:    "10001",
		Statuses:    []models.RoundStatus{models.StatusOpen},
		EndedBefore: &ended,
	})
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "B", rounds[0].Period)

	newest, err := m.FindRounds(ctx, RoundQuery{GameCode: "10001", Newest: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "C", newest[0].Period)
	assert.Equal(t, "B", newest[1].Period)

	n, err := m.CountRounds(ctx, RoundQuery{GameCode: "10001"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	started := t0.Add(2 * time.Minute)
	before, err := m.FindRounds(ctx, RoundQuery{GameCode: "10001", StartedBefore: &started, Newest: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "B", before[0].Period)

	none, err := m.FindRounds(ctx, RoundQuery{GameCode: "nope"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_SetPresetDigit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	open := newRound("P1", models.StatusOpen, t0)
	settled := newRound("P2", models.StatusSettled, t0)
	require.NoError(t, m.CreateRound(ctx, open))
	require.NoError(t, m.CreateRound(ctx, settled))

	require.NoError(t, m.SetPresetDigit(ctx, open.ID, 4))
	got, err := m.RoundByID(ctx, open.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PresetDigit)
	assert.Equal(t, 4, *got.PresetDigit)

	assert.ErrorIs(t, m.SetPresetDigit(ctx, settled.ID, 4), ErrConflict)
	assert.ErrorIs(t, m.SetPresetDigit(ctx, primitive.NewObjectID(), 4), ErrNotFound)
}

func TestMemory_MarkPayoutsApplied_Once(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := newRound("P1", models.StatusClosed, t0)
	require.NoError(t, m.CreateRound(ctx, r))

	ok, err := m.MarkPayoutsApplied(ctx, r.ID, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.MarkPayoutsApplied(ctx, r.ID, t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Wallets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := m.PutUser(models.User{Nickname: "alice", WalletBalance: 50})

	assert.ErrorIs(t, m.DebitWallet(ctx, u.ID, 80), ErrInsufficientFunds)
	require.NoError(t, m.DebitWallet(ctx, u.ID, 20))
	require.NoError(t, m.CreditWallets(ctx, map[primitive.ObjectID]float64{u.ID: 196, primitive.NewObjectID(): 10}))

	got, err := m.Wallet(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 226.0, got.WalletBalance, 1e-9)

	assert.ErrorIs(t, m.DebitWallet(ctx, primitive.NewObjectID(), 1), ErrNotFound)
}

func TestMemory_BetsForUser_Paged(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	user := primitive.NewObjectID()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.InsertBet(ctx, &models.Bet{UserID: user, GameCode: "10001", Amount: float64(i + 1)}))
	}
	require.NoError(t, m.InsertBet(ctx, &models.Bet{UserID: user, GameCode: "10005", Amount: 99}))

	page, total, err := m.BetsForUser(ctx, user, "10001", Page{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, 5.0, page[0].Amount, "newest first")

	last, _, err := m.BetsForUser(ctx, user, "10001", Page{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, 1.0, last[0].Amount)
}

func TestPage_Skip(t *testing.T) {
	tests := []struct {
		page Page
		want int
	}{
		{Page{Page: 1, PageSize: 20}, 0},
		{Page{Page: 3, PageSize: 20}, 40},
		{Page{Page: 0, PageSize: 20}, 0},
		{Page{Page: math.MaxInt, PageSize: 100}, math.MaxInt},
		{Page{Page: math.MaxInt/100 + 2, PageSize: 100}, math.MaxInt},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.page.Skip(), "%+v", tt.page)
	}

	m := NewMemory()
	bets, total, err := m.BetsForUser(context.Background(), primitive.NewObjectID(), "", Page{Page: math.MaxInt, PageSize: 100})
	require.NoError(t, err)
	assert.Empty(t, bets)
	assert.Zero(t, total)
}
