package controllers

import (
	"wingo/config"
	"wingo/models"
	"wingo/rules"
	"wingo/store"

	"go.uber.org/zap"
)

// Components is everything serve needs once a store is connected.
type Components struct {
	Hub       *models.Hub
	Reporter  *Reporter
	Settler   *Settler
	Scheduler *Scheduler
	Bets      *BetService
	Rounds    *RoundController
}

// Init builds the service graph over st with the system clock and a random oracle.
func Init(cfg *config.Config, st store.RoundStore, log *zap.SugaredLogger) *Components {
	return InitWith(cfg, st, SystemClock{}, NewRandomOracle(), log)
}

// InitWith is Init with an explicit clock and oracle.
func InitWith(cfg *config.Config, st store.RoundStore, clock Clock, oracle Oracle, log *zap.SugaredLogger) *Components {
	hub := models.NewHub(log.Named("hub"))
	reporter := NewReporter(st, clock, log.Named("reporter"))
	evaluator := rules.Evaluator{FeeRate: cfg.ServiceFeeRate, AllowMultiCategory: cfg.AllowMultiCategoryBets}
	settler := NewSettler(st, oracle, evaluator, clock, hub, reporter, log.Named("settlement"))
	scheduler := NewScheduler(st, settler, clock, hub, reporter, log.Named("scheduler"), SchedulerConfig{
		Interval:      cfg.TickInterval,
		StaleAfter:    cfg.StaleAfter,
		BackfillGrace: cfg.BackfillGrace,
		BackfillLimit: cfg.BackfillLimit,
	})
	bets := NewBetService(st, clock, cfg.BetCutoff, log.Named("bets"))

	return &Components{
		Hub:       hub,
		Reporter:  reporter,
		Settler:   settler,
		Scheduler: scheduler,
		Bets:      bets,
		Rounds:    NewRoundController(st, bets, clock, log.Named("http")),
	}
}
