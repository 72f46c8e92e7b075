// Package store is the durable record of games, rounds, bets and wallet
// credits. Every cross-process guarantee the scheduler makes rests on two
// things this package provides: the unique period index, and
// CompareAndSwapStatus.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"wingo/models"
	"wingo/rules"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicatePeriod   = errors.New("duplicate round period")
	ErrConflict          = errors.New("concurrency conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Transition describes the fields written together with a status change.
type Transition struct {
	// At stamps updatedAt; staleness is measured from it.
	At        time.Time
	Outcome   *rules.Outcome
	SettledAt *time.Time
	LockedBy  string
	Summary   *RoundSummary

	// StaleBefore, when set, additionally requires updatedAt < StaleBefore.
	// Recovery uses it so only one caller re-claims an abandoned round.
	StaleBefore *time.Time
}

// RoundSummary is the aggregate written when a round closes.
type RoundSummary struct {
	BetCount    int
	TotalStake  float64
	TotalPayout float64
}

// RoundQuery selects rounds for one game. Zero-valued fields do not filter.
type RoundQuery struct {
	GameCode      string
	Statuses      []models.RoundStatus
	StartedBefore *time.Time
	EndedBefore   *time.Time
	UpdatedBefore *time.Time
	Newest        bool // sort by startsAt descending instead of ascending
	Skip          int
	Limit         int
}

type Page struct {
	Page     int
	PageSize int
}

// Skip is the number of records before the page. Pages past the int range
// clamp to math.MaxInt so they read as empty rather than wrapping negative.
func (p Page) Skip() int {
	if p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// RoundStore is the persistence contract for the scheduler, the settlement
// engine and the read API.
type RoundStore interface {
	UpsertGame(ctx context.Context, game models.Game) error
	ActiveGames(ctx context.Context) ([]models.Game, error)
	GameByCode(ctx context.Context, code string) (*models.Game, error)

	// CreateRound inserts a round. It returns ErrDuplicatePeriod when the
	// period already exists.
	CreateRound(ctx context.Context, round *models.Round) error
	RoundByID(ctx context.Context, id primitive.ObjectID) (*models.Round, error)
	RoundByPeriod(ctx context.Context, period string) (*models.Round, error)
	FindRounds(ctx context.Context, q RoundQuery) ([]models.Round, error)
	CountRounds(ctx context.Context, q RoundQuery) (int64, error)

	// CompareAndSwapStatus moves a round from expected to next only if its
	// status still equals expected, writing the transition fields in the same
	// single-document update. A false result with a nil error means another
	// caller got there first.
	CompareAndSwapStatus(ctx context.Context, id primitive.ObjectID, expected, next models.RoundStatus, t Transition) (bool, error)

	// SetPresetDigit fills the operator slot while the round has no outcome.
	SetPresetDigit(ctx context.Context, id primitive.ObjectID, digit int) error
	// MarkPayoutsApplied flips the payout marker false -> true.
	MarkPayoutsApplied(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error)

	InsertBet(ctx context.Context, bet *models.Bet) error
	BetsForRound(ctx context.Context, roundID primitive.ObjectID) ([]models.Bet, error)
	BetsForUser(ctx context.Context, userID primitive.ObjectID, gameCode string, p Page) ([]models.Bet, int64, error)
	// ApplyBetResults overwrites isWin/payoutAmount; repeating it is harmless.
	ApplyBetResults(ctx context.Context, results []models.BetResult) error

	// CreditWallets applies one additive increment per user.
	CreditWallets(ctx context.Context, credits map[primitive.ObjectID]float64) error
	// DebitWallet decrements a balance only if it covers amount.
	DebitWallet(ctx context.Context, userID primitive.ObjectID, amount float64) error
	Wallet(ctx context.Context, userID primitive.ObjectID) (*models.User, error)

	LogError(ctx context.Context, entry models.ErrorLog) error
}
