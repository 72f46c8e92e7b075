package models

import (
	"time"

	"wingo/rules"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RoundStatus string

// Lifecycle runs forward only: scheduled -> open -> processing -> closed -> settled.
const (
	StatusScheduled  RoundStatus = "scheduled"
	StatusOpen       RoundStatus = "open"
	StatusProcessing RoundStatus = "processing"
	StatusClosed     RoundStatus = "closed"
	StatusSettled    RoundStatus = "settled"
)

type Round struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	GameCode string             `json:"gameCode" bson:"gameCode"`
	Period   string             `json:"period" bson:"period"`
	StartsAt time.Time          `json:"startsAt" bson:"startsAt"`
	EndsAt   time.Time          `json:"endsAt" bson:"endsAt"`
	Status   RoundStatus        `json:"status" bson:"status"`

	// PresetDigit is the operator slot. Settlement uses it verbatim when set.
	PresetDigit  *int         `json:"-" bson:"presetDigit"`
	OutcomeDigit *int         `json:"outcomeDigit" bson:"outcomeDigit"`
	OutcomeSize  *rules.Size  `json:"outcomeSize" bson:"outcomeSize"`
	OutcomeColor *rules.Color `json:"outcomeColor" bson:"outcomeColor"`

	// PayoutsApplied is set once the wallet credit batch for this round succeeded.
	PayoutsApplied bool   `json:"-" bson:"payoutsApplied"`
	LockedBy       string `json:"-" bson:"lockedBy,omitempty"`

	BetCount    int     `json:"betCount" bson:"betCount"`
	TotalStake  float64 `json:"totalStake" bson:"totalStake"`
	TotalPayout float64 `json:"totalPayout" bson:"totalPayout"`

	SettledAt *time.Time `json:"settledAt" bson:"settledAt"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Outcome returns the stored outcome, if settlement has recorded one.
func (r *Round) Outcome() (rules.Outcome, bool) {
	if r.OutcomeDigit == nil {
		return rules.Outcome{}, false
	}
	o, err := rules.Classify(*r.OutcomeDigit)
	if err != nil {
		return rules.Outcome{}, false
	}
	return o, true
}

// SetOutcome copies a classified outcome onto the round fields.
func (r *Round) SetOutcome(o rules.Outcome) {
	digit, size, color := o.Digit, o.Size, o.Color
	r.OutcomeDigit = &digit
	r.OutcomeSize = &size
	r.OutcomeColor = &color
}

// Public returns a copy safe to show players: outcome fields stay hidden
// until the round has closed.
func (r Round) Public() Round {
	if r.Status != StatusClosed && r.Status != StatusSettled {
		r.OutcomeDigit = nil
		r.OutcomeSize = nil
		r.OutcomeColor = nil
	}
	r.PresetDigit = nil
	return r
}

// BettingDeadline is the last instant a bet is accepted, given the pre-close cutoff.
func (r *Round) BettingDeadline(cutoff time.Duration) time.Time {
	return r.EndsAt.Add(-cutoff)
}
