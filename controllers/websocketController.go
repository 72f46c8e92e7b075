package controllers

import (
	"context"
	"time"

	"wingo/models"
	"wingo/store"
)

// CurrentRounds is the snapshot a websocket client receives on connect: the
// open round of every active game, outcome fields hidden.
func (rc *RoundController) CurrentRounds(ctx context.Context) ([]models.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	games, err := rc.Store.ActiveGames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Round, 0, len(games))
	for _, g := range games {
		rounds, err := rc.Store.FindRounds(ctx, store.RoundQuery{
			GameCode: g.GameCode,
			Statuses: []models.RoundStatus{models.StatusOpen},
			Newest:   true,
			Limit:    1,
		})
		if err != nil {
			return nil, err
		}
		if len(rounds) > 0 {
			out = append(out, rounds[0].Public())
		}
	}
	return out, nil
}
