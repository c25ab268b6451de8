// Package metrics holds the process Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const labelGame = "game"

var (
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_bets_total",
		Help: "Bets accepted per game.",
	}, []string{labelGame})

	WageredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_wagered_total",
		Help: "Amount wagered per game.",
	}, []string{labelGame})

	PayoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_payout_total",
		Help: "Amount paid out per game.",
	}, []string{labelGame})

	CrashRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casino_crash_rounds_total",
		Help: "Crash rounds that reached the crashed state.",
	})

	CrashPoint = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "casino_crash_point",
		Help:    "Distribution of crash points.",
		Buckets: []float64{1, 1.2, 1.5, 2, 3, 5, 10, 20, 50, 100, 1000, 10000},
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "casino_ws_clients",
		Help: "Connected websocket clients.",
	})
)

// RecordBet counts one accepted bet.
func RecordBet(game string, amount decimal.Decimal) {
	BetsTotal.WithLabelValues(game).Inc()
	WageredTotal.WithLabelValues(game).Add(amount.InexactFloat64())
}

func RecordPayout(game string, amount decimal.Decimal) {
	if amount.IsPositive() {
		PayoutTotal.WithLabelValues(game).Add(amount.InexactFloat64())
	}
}
