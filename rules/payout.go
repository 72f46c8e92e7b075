package rules

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the service fee taken off every stake before payout math.
var DefaultFeeRate = decimal.RequireFromString("0.02")

var (
	multiplierEven   = decimal.NewFromInt(2)
	multiplierHybrid = decimal.RequireFromString("1.5")
	multiplierViolet = decimal.RequireFromString("4.5")
	multiplierNumber = decimal.NewFromInt(9)
)

// Wager is the scoring view of a bet. Category tags the bet type chosen at
// placement; the choice pointers hold whatever the stored bet carries.
type Wager struct {
	Category Category
	Size     *Size
	Color    *Color
	Number   *int
	Amount   decimal.Decimal
}

// Result is the scored wager. Payout is zero for a loss.
type Result struct {
	IsWin    bool            `json:"isWin"`
	Payout   decimal.Decimal `json:"payoutAmount"`
	Contract decimal.Decimal `json:"contractAmount"`
}

// Evaluator scores wagers.
//
// With AllowMultiCategory set, every populated choice field is scored and the
// payouts are summed. Otherwise a wager must carry exactly one choice and it
// must match its Category.
type Evaluator struct {
	FeeRate            decimal.Decimal
	AllowMultiCategory bool
}

// NewEvaluator returns an Evaluator with the default fee rate.
func NewEvaluator(allowMultiCategory bool) Evaluator {
	return Evaluator{FeeRate: DefaultFeeRate, AllowMultiCategory: allowMultiCategory}
}

// EvaluateBet scores a wager with the default fee rate and multi-category summing.
func EvaluateBet(w Wager, winningDigit int) (Result, error) {
	return NewEvaluator(true).Evaluate(w, winningDigit)
}

// ContractAmount is the stake after the service fee, rounded to cents.
func (e Evaluator) ContractAmount(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(decimal.NewFromInt(1).Sub(e.FeeRate)).Round(2)
}

func (e Evaluator) Evaluate(w Wager, winningDigit int) (Result, error) {
	if !w.Amount.IsPositive() {
		return Result{}, fmt.Errorf("%w: stake must be positive, got %s", ErrInvalidBet, w.Amount)
	}
	outcome, err := Classify(winningDigit)
	if err != nil {
		return Result{}, err
	}
	w, err = e.normalize(w)
	if err != nil {
		return Result{}, err
	}

	contract := e.ContractAmount(w.Amount)
	payout := decimal.Zero
	win := false

	add := func(m decimal.Decimal) {
		payout = payout.Add(contract.Mul(m))
		win = true
	}

	if w.Size != nil && *w.Size == outcome.Size {
		add(multiplierEven)
	}

	if w.Color != nil {
		switch *w.Color {
		case ColorGreen:
			switch outcome.Color {
			case ColorGreen:
				add(multiplierEven)
			case ColorGreenViolet:
				add(multiplierHybrid)
			}
		case ColorRed:
			switch outcome.Color {
			case ColorRed:
				add(multiplierEven)
			case ColorRedViolet:
				add(multiplierHybrid)
			}
		case ColorViolet:
			if outcome.Color == ColorRedViolet || outcome.Color == ColorGreenViolet {
				add(multiplierViolet)
			}
		}
	}

	if w.Number != nil && *w.Number == winningDigit {
		add(multiplierNumber)
	}

	return Result{IsWin: win, Payout: payout.Round(2), Contract: contract}, nil
}

// normalize validates the choice fields and returns a copy with the size and
// color choices in canonical case.
func (e Evaluator) normalize(w Wager) (Wager, error) {
	populated := 0
	if w.Size != nil {
		populated++
		size, ok := ParseSize(string(*w.Size))
		if !ok {
			return w, fmt.Errorf("%w: unknown size choice %q", ErrInvalidBet, *w.Size)
		}
		w.Size = &size
	}
	if w.Color != nil {
		populated++
		color, ok := ParseChoiceColor(string(*w.Color))
		if !ok {
			return w, fmt.Errorf("%w: unknown color choice %q", ErrInvalidBet, *w.Color)
		}
		w.Color = &color
	}
	if w.Number != nil {
		populated++
		if *w.Number < 0 || *w.Number > 9 {
			return w, fmt.Errorf("%w: number choice %d is outside 0-9", ErrInvalidBet, *w.Number)
		}
	}
	if populated == 0 {
		return w, fmt.Errorf("%w: no choice set", ErrInvalidBet)
	}
	if e.AllowMultiCategory {
		return w, nil
	}

	if populated > 1 {
		return w, fmt.Errorf("%w: %d choices set on a single-category bet", ErrInvalidBet, populated)
	}
	var matches bool
	switch w.Category {
	case CategorySize:
		matches = w.Size != nil
	case CategoryColor:
		matches = w.Color != nil
	case CategoryNumber:
		matches = w.Number != nil
	}
	if !matches {
		return w, fmt.Errorf("%w: choice does not match category %q", ErrInvalidBet, w.Category)
	}
	return w, nil
}
