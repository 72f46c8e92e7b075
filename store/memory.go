package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"wingo/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is a RoundStore kept in process memory. It honors the same atomicity
// rules as the Mongo store (each method is one critical section) and backs
// the tests and the STORE=memory development mode.
type Memory struct {
	mu       sync.Mutex
	games    map[string]models.Game
	rounds   map[primitive.ObjectID]*models.Round
	periods  map[string]primitive.ObjectID
	bets     map[primitive.ObjectID]*models.Bet
	betOrder []primitive.ObjectID
	users    map[primitive.ObjectID]*models.User
	errors   []models.ErrorLog
}

func NewMemory() *Memory {
	return &Memory{
		games:   make(map[string]models.Game),
		rounds:  make(map[primitive.ObjectID]*models.Round),
		periods: make(map[string]primitive.ObjectID),
		bets:    make(map[primitive.ObjectID]*models.Bet),
		users:   make(map[primitive.ObjectID]*models.User),
	}
}

var _ RoundStore = (*Memory)(nil)

func (m *Memory) UpsertGame(_ context.Context, game models.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.games[game.GameCode]; ok {
		game.ID = existing.ID
		game.CreatedAt = existing.CreatedAt
	} else if game.ID.IsZero() {
		game.ID = primitive.NewObjectID()
	}
	m.games[game.GameCode] = game
	return nil
}

func (m *Memory) ActiveGames(_ context.Context) ([]models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Game
	for _, g := range m.games {
		if g.IsActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DurationSeconds < out[j].DurationSeconds })
	return out, nil
}

func (m *Memory) GameByCode(_ context.Context, code string) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *Memory) CreateRound(_ context.Context, round *models.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.periods[round.Period]; taken {
		return ErrDuplicatePeriod
	}
	if round.ID.IsZero() {
		round.ID = primitive.NewObjectID()
	}
	cp := *round
	m.rounds[cp.ID] = &cp
	m.periods[cp.Period] = cp.ID
	return nil
}

func (m *Memory) RoundByID(_ context.Context, id primitive.ObjectID) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) RoundByPeriod(_ context.Context, period string) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.periods[period]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.rounds[id]
	return &cp, nil
}

func (m *Memory) matching(q RoundQuery) []models.Round {
	var out []models.Round
	for _, r := range m.rounds {
		if q.GameCode != "" && r.GameCode != q.GameCode {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, r.Status) {
			continue
		}
		if q.StartedBefore != nil && !r.StartsAt.Before(*q.StartedBefore) {
			continue
		}
		if q.EndedBefore != nil && r.EndsAt.After(*q.EndedBefore) {
			continue
		}
		if q.UpdatedBefore != nil && !r.UpdatedAt.Before(*q.UpdatedBefore) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Newest {
			return out[i].StartsAt.After(out[j].StartsAt)
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out
}

func (m *Memory) FindRounds(_ context.Context, q RoundQuery) ([]models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.matching(q)
	if q.Skip > 0 {
		if q.Skip >= len(out) {
			return nil, nil
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) CountRounds(_ context.Context, q RoundQuery) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.matching(q))), nil
}

func (m *Memory) CompareAndSwapStatus(_ context.Context, id primitive.ObjectID, expected, next models.RoundStatus, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok || r.Status != expected {
		return false, nil
	}
	if t.StaleBefore != nil && !r.UpdatedAt.Before(*t.StaleBefore) {
		return false, nil
	}

	r.Status = next
	r.UpdatedAt = t.At
	if t.Outcome != nil {
		r.SetOutcome(*t.Outcome)
	}
	if t.SettledAt != nil {
		at := *t.SettledAt
		r.SettledAt = &at
	}
	if t.LockedBy != "" {
		r.LockedBy = t.LockedBy
	}
	if t.Summary != nil {
		r.BetCount = t.Summary.BetCount
		r.TotalStake = t.Summary.TotalStake
		r.TotalPayout = t.Summary.TotalPayout
	}
	return true, nil
}

func (m *Memory) SetPresetDigit(_ context.Context, id primitive.ObjectID, digit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return ErrNotFound
	}
	if r.OutcomeDigit != nil || !presetAllowed(r.Status) {
		return ErrConflict
	}
	d := digit
	r.PresetDigit = &d
	return nil
}

func (m *Memory) MarkPayoutsApplied(_ context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok || r.PayoutsApplied {
		return false, nil
	}
	r.PayoutsApplied = true
	r.UpdatedAt = at
	return true, nil
}

func (m *Memory) InsertBet(_ context.Context, bet *models.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bet.ID.IsZero() {
		bet.ID = primitive.NewObjectID()
	}
	cp := *bet
	m.bets[cp.ID] = &cp
	m.betOrder = append(m.betOrder, cp.ID)
	return nil
}

func (m *Memory) BetsForRound(_ context.Context, roundID primitive.ObjectID) ([]models.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bet
	for _, id := range m.betOrder {
		if b := m.bets[id]; b.RoundID == roundID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *Memory) BetsForUser(_ context.Context, userID primitive.ObjectID, gameCode string, p Page) ([]models.Bet, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Bet
	for i := len(m.betOrder) - 1; i >= 0; i-- {
		b := m.bets[m.betOrder[i]]
		if b.UserID != userID || (gameCode != "" && b.GameCode != gameCode) {
			continue
		}
		all = append(all, *b)
	}
	total := int64(len(all))
	start := p.Skip()
	if start >= len(all) {
		return nil, total, nil
	}
	end := len(all)
	if p.PageSize > 0 && start+p.PageSize < end {
		end = start + p.PageSize
	}
	return all[start:end], total, nil
}

func (m *Memory) ApplyBetResults(_ context.Context, results []models.BetResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range results {
		b, ok := m.bets[res.BetID]
		if !ok {
			continue
		}
		win, payout := res.IsWin, res.PayoutAmount
		b.IsWin = &win
		b.PayoutAmount = &payout
	}
	return nil
}

func (m *Memory) CreditWallets(_ context.Context, credits map[primitive.ObjectID]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, amount := range credits {
		if u, ok := m.users[id]; ok {
			u.WalletBalance += amount
		}
	}
	return nil
}

func (m *Memory) DebitWallet(_ context.Context, userID primitive.ObjectID, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.WalletBalance < amount {
		return ErrInsufficientFunds
	}
	u.WalletBalance -= amount
	return nil
}

func (m *Memory) Wallet(_ context.Context, userID primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) LogError(_ context.Context, entry models.ErrorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, entry)
	return nil
}

// PutUser creates or replaces a wallet holder.
func (m *Memory) PutUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	cp := u
	m.users[u.ID] = &cp
	return u
}

// ErrorLogs returns a copy of the persisted anomaly reports.
func (m *Memory) ErrorLogs() []models.ErrorLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ErrorLog(nil), m.errors...)
}

func presetAllowed(s models.RoundStatus) bool {
	return s == models.StatusScheduled || s == models.StatusOpen || s == models.StatusProcessing
}
