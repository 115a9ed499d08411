package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradeflow_orders_total", Help: "Order legs by final state"},
		[]string{"venue", "side", "state"},
	)
	PlaceRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradeflow_place_retries_total", Help: "Order placement retries"},
		[]string{"venue"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradeflow_signals_total", Help: "Crossover evaluations by result"},
		[]string{"instrument", "signal"},
	)
	CycleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradeflow_cycle_errors_total", Help: "Decision cycles that failed or panicked"},
		[]string{"instrument"},
	)
	BusWakeupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradeflow_bus_wakeups_total", Help: "Tick bar notifications delivered to workers"},
		[]string{"instrument"},
	)
	// 1 = LONG, -1 = SHORT, 0 = FLAT
	Position = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "tradeflow_position", Help: "Current position per instrument"},
		[]string{"instrument"},
	)
	Workers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradeflow_workers", Help: "Running instrument workers"},
	)
)

func init() {
	prometheus.MustRegister(OrdersTotal, PlaceRetriesTotal, SignalsTotal, CycleErrorsTotal, BusWakeupsTotal, Position, Workers)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
