// Package rules maps a result digit to its categorical outcome and scores
// wagers against it. Nothing here performs I/O.
package rules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidDigit = errors.New("invalid digit")
	ErrInvalidBet   = errors.New("invalid bet")
)

type Size string

const (
	SizeBig   Size = "BIG"
	SizeSmall Size = "SMALL"
)

// Color is both a wager choice (green, red, violet) and an outcome color.
// The two violet hybrids only ever appear as outcomes.
type Color string

const (
	ColorGreen       Color = "GREEN"
	ColorRed         Color = "RED"
	ColorViolet      Color = "VIOLET"
	ColorRedViolet   Color = "RED_VIOLET"
	ColorGreenViolet Color = "GREEN_VIOLET"
)

type Category string

const (
	CategorySize   Category = "BIG_SMALL"
	CategoryNumber Category = "NUMBER"
	CategoryColor  Category = "COLOR"
)

// Outcome is the classified result of a round.
type Outcome struct {
	Digit int   `json:"digit" bson:"digit"`
	Size  Size  `json:"size" bson:"size"`
	Color Color `json:"color" bson:"color"`
}

// Classify returns the size and color categories for a digit in 0..9.
func Classify(digit int) (Outcome, error) {
	if digit < 0 || digit > 9 {
		return Outcome{}, fmt.Errorf("%w: %d is outside 0-9", ErrInvalidDigit, digit)
	}

	o := Outcome{Digit: digit, Size: SizeSmall}
	if digit >= 5 {
		o.Size = SizeBig
	}

	switch digit {
	case 1, 3, 7, 9:
		o.Color = ColorGreen
	case 2, 4, 6, 8:
		o.Color = ColorRed
	case 0:
		o.Color = ColorRedViolet
	case 5:
		o.Color = ColorGreenViolet
	}
	return o, nil
}

// ParseSize accepts big/small in any case.
func ParseSize(s string) (Size, bool) {
	switch Size(upper(s)) {
	case SizeBig:
		return SizeBig, true
	case SizeSmall:
		return SizeSmall, true
	}
	return "", false
}

// ParseChoiceColor accepts the three colors a wager may pick.
func ParseChoiceColor(s string) (Color, bool) {
	switch Color(upper(s)) {
	case ColorGreen:
		return ColorGreen, true
	case ColorRed:
		return ColorRed, true
	case ColorViolet:
		return ColorViolet, true
	}
	return "", false
}

func ParseCategory(s string) (Category, bool) {
	switch Category(upper(s)) {
	case CategorySize:
		return CategorySize, true
	case CategoryNumber:
		return CategoryNumber, true
	case CategoryColor:
		return CategoryColor, true
	}
	return "", false
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
