// Prometheus metrics for the round lifecycle. Registered in init() and served
// at /metrics by the routes package.
//
//   - wingo_ticks_total{result}                  ran | skipped
//   - wingo_tick_duration_seconds                wall time of one scheduler tick
//   - wingo_round_transitions_total{game,status}  successful CAS moves into status
//   - wingo_rounds_recovered_total{game,reason}   stale | overdue
//   - wingo_rounds_backfilled_total{game}         missed windows recreated
//   - wingo_settlement_duration_seconds{game}
//   - wingo_bets_settled_total{game,result}       win | loss | invalid
//   - wingo_payout_credited_total{game}           sum of wallet credits
//   - wingo_bets_placed_total{game,category}
//   - wingo_bet_rejections_total{reason}
//   - wingo_anomalies_total{source}

package controllers

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_ticks_total",
			Help: "Scheduler ticks by result",
		},
		[]string{"result"},
	)

	mtxTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wingo_tick_duration_seconds",
			Help:    "Duration of one scheduler tick",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	mtxTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_round_transitions_total",
			Help: "Round status transitions won by this instance",
		},
		[]string{"game", "status"},
	)

	mtxRecovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_rounds_recovered_total",
			Help: "Rounds re-claimed by the recovery sweep",
		},
		[]string{"game", "reason"},
	)

	mtxBackfilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_rounds_backfilled_total",
			Help: "Missed windows recreated after downtime",
		},
		[]string{"game"},
	)

	mtxSettlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wingo_settlement_duration_seconds",
			Help:    "Duration of one settlement pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"game"},
	)

	mtxBetsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_bets_settled_total",
			Help: "Bets scored by settlement",
		},
		[]string{"game", "result"},
	)

	mtxPayoutCredited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_payout_credited_total",
			Help: "Total amount credited to wallets",
		},
		[]string{"game"},
	)

	mtxBetsPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_bets_placed_total",
			Help: "Bets accepted at intake",
		},
		[]string{"game", "category"},
	)

	mtxBetRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_bet_rejections_total",
			Help: "Bets refused at intake",
		},
		[]string{"reason"},
	)

	mtxAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wingo_anomalies_total",
			Help: "Reported anomalies by source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(mtxTicks, mtxTickDuration)
	prometheus.MustRegister(mtxTransitions, mtxRecovered, mtxBackfilled)
	prometheus.MustRegister(mtxSettlementDuration, mtxBetsSettled, mtxPayoutCredited)
	prometheus.MustRegister(mtxBetsPlaced, mtxBetRejections)
	prometheus.MustRegister(mtxAnomalies)
}
