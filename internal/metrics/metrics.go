// Package metrics exposes the game's Prometheus instrumentation, served at
// /metrics by the API server:
//   - darkpool_trades_total{side}              executed buy/sell actions
//   - darkpool_liquidations_total              forced short closes
//   - darkpool_intel_total{direction}          intel purchases
//   - darkpool_loans_total                     loans issued
//   - darkpool_price                           current market price
//   - darkpool_clock_hour                      simulated hour of the round
//   - darkpool_short_pressure                  last crowding ratio
//   - darkpool_players                         registered players
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_trades_total",
			Help: "Executed trade actions",
		},
		[]string{"side"},
	)

	liquidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "darkpool_liquidations_total",
			Help: "Forced short liquidations",
		},
	)

	intelTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_intel_total",
			Help: "Intel purchases by direction",
		},
		[]string{"direction"},
	)

	loansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "darkpool_loans_total",
			Help: "Loans issued",
		},
	)

	price = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "darkpool_price",
			Help: "Current market price",
		},
	)

	clockHour = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "darkpool_clock_hour",
			Help: "Simulated hour within the round",
		},
	)

	shortPressure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "darkpool_short_pressure",
			Help: "Last computed short crowding ratio",
		},
	)

	players = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "darkpool_players",
			Help: "Registered players",
		},
	)
)

func init() {
	prometheus.MustRegister(
		tradesTotal,
		liquidationsTotal,
		intelTotal,
		loansTotal,
		price,
		clockHour,
		shortPressure,
		players,
	)
}

func IncTrade(side string)       { tradesTotal.WithLabelValues(side).Inc() }
func IncLiquidations(n int)      { liquidationsTotal.Add(float64(n)) }
func IncIntel(direction string)  { intelTotal.WithLabelValues(direction).Inc() }
func IncLoan()                   { loansTotal.Inc() }
func SetPrice(v float64)         { price.Set(v) }
func SetClockHour(h int)         { clockHour.Set(float64(h)) }
func SetShortPressure(v float64) { shortPressure.Set(v) }
func SetPlayers(n int)           { players.Set(float64(n)) }
