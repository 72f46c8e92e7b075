package models

import (
	"time"

	"wingo/rules"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Bet struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID   primitive.ObjectID `json:"userId" bson:"user"`
	RoundID  primitive.ObjectID `json:"roundId" bson:"round"`
	GameCode string             `json:"gameCode" bson:"gameCode"`
	Period   string             `json:"period" bson:"period"`

	Category     rules.Category `json:"betType" bson:"betType"`
	ChoiceSize   *rules.Size    `json:"choiceBigSmall,omitempty" bson:"choiceBigSmall"`
	ChoiceColor  *rules.Color   `json:"choiceColor,omitempty" bson:"choiceColor"`
	ChoiceNumber *int           `json:"choiceNumber,omitempty" bson:"choiceNumber"`
	Amount       float64        `json:"amount" bson:"amount"`

	// Written by settlement; nil until the round is scored.
	IsWin        *bool    `json:"isWin" bson:"isWin"`
	PayoutAmount *float64 `json:"payoutAmount" bson:"payoutAmount"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Wager converts the stored bet into its scoring form.
func (b Bet) Wager() rules.Wager {
	return rules.Wager{
		Category: b.Category,
		Size:     b.ChoiceSize,
		Color:    b.ChoiceColor,
		Number:   b.ChoiceNumber,
		Amount:   decimal.NewFromFloat(b.Amount),
	}
}

// BetResult is the per-bet write produced by settlement.
type BetResult struct {
	BetID        primitive.ObjectID
	UserID       primitive.ObjectID
	IsWin        bool
	PayoutAmount float64
}
