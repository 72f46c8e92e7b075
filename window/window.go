// Package window computes the deterministic time slot a game round occupies.
//
// Slots are counted from UTC midnight, so any process that asks for the window
// of the same instant gets the same answer. The scheduler relies on that to
// rebuild "which round should be open right now" after a restart.
package window

import (
	"errors"
	"fmt"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// ErrInvalidConfiguration is returned for a duration that cannot tile a UTC day.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Window is one aligned round slot.
type Window struct {
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	Period   string    `json:"period"`
	// Slot is the zero-based index of the window within its UTC day.
	Slot int `json:"slot"`
}

// Validate reports whether durationSeconds can be used to build windows.
// The duration must divide a day evenly so the last slot of a day never
// overlaps the first slot of the next.
func Validate(durationSeconds int) error {
	if durationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidConfiguration, durationSeconds)
	}
	if secondsPerDay%durationSeconds != 0 {
		return fmt.Errorf("%w: duration %ds does not divide a day", ErrInvalidConfiguration, durationSeconds)
	}
	return nil
}

// Compute returns the window containing at for a game of the given duration.
func Compute(durationSeconds int, gameCode string, at time.Time) (Window, error) {
	if err := Validate(durationSeconds); err != nil {
		return Window{}, err
	}
	if gameCode == "" {
		return Window{}, fmt.Errorf("%w: empty game code", ErrInvalidConfiguration)
	}

	at = at.UTC()
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := int(at.Sub(midnight) / time.Second)
	slot := elapsed / durationSeconds

	duration := time.Duration(durationSeconds) * time.Second
	startsAt := midnight.Add(time.Duration(slot) * duration)

	return Window{
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(duration),
		Period:   Period(midnight, gameCode, slot),
		Slot:     slot,
	}, nil
}

// Next returns the window immediately following w.
func Next(durationSeconds int, gameCode string, w Window) (Window, error) {
	return Compute(durationSeconds, gameCode, w.EndsAt)
}

// Period formats the round key: YYYYMMDD, the game code, then the one-based
// daily sequence padded to four digits.
func Period(day time.Time, gameCode string, slot int) string {
	return fmt.Sprintf("%s%s%04d", day.UTC().Format("20060102"), gameCode, slot+1)
}

// Between lists the windows whose start lies in [from, to), oldest first,
// capped at limit entries. from is aligned down to its own window.
func Between(durationSeconds int, gameCode string, from, to time.Time, limit int) ([]Window, error) {
	if limit <= 0 {
		return nil, nil
	}
	w, err := Compute(durationSeconds, gameCode, from)
	if err != nil {
		return nil, err
	}
	var out []Window
	for w.StartsAt.Before(to) && len(out) < limit {
		out = append(out, w)
		if w, err = Next(durationSeconds, gameCode, w); err != nil {
			return nil, err
		}
	}
	return out, nil
}
