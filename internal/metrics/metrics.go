package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the fleet's gauges and counters. All pushes are
// fire-and-forget; no pipeline stage ever fails on a metrics problem.
type Metrics struct {
	pairPrice     *prometheus.GaugeVec
	movingAverage *prometheus.GaugeVec
	bestProximity *prometheus.GaugeVec
	pendingDepth  prometheus.Gauge
	tradesTotal   *prometheus.CounterVec
	gasAborts     prometheus.Counter
}

// New registers the fleet metrics on reg. Production passes
// prometheus.DefaultRegisterer; tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		pairPrice: auto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ethmatic_pair_price",
			Help: "Latest pool price per pair, base in quote units.",
		}, []string{"pair"}),
		movingAverage: auto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ethmatic_moving_average",
			Help: "Moving-average bucket value per pair and duration.",
		}, []string{"pair", "duration"}),
		bestProximity: auto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ethmatic_best_proximity_pct",
			Help: "Closest distance to a signal boundary seen in the last cycle, percent.",
		}, []string{"side"}),
		pendingDepth: auto.NewGauge(prometheus.GaugeOpts{
			Name: "ethmatic_pending_txns",
			Help: "Pending transactions awaiting settlement.",
		}),
		tradesTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "ethmatic_trades_total",
			Help: "Trades by side and terminal status.",
		}, []string{"side", "status"}),
		gasAborts: auto.NewCounter(prometheus.CounterOpts{
			Name: "ethmatic_gas_aborts_total",
			Help: "Cycles and submissions aborted by the gas ceiling.",
		}),
	}
}

func (m *Metrics) SetPairPrice(pair string, price float64) {
	m.pairPrice.WithLabelValues(pair).Set(price)
}

func (m *Metrics) SetMovingAverage(pair string, duration int, value float64) {
	m.movingAverage.WithLabelValues(pair, strconv.Itoa(duration)).Set(value)
}

func (m *Metrics) SetBestProximity(side string, pct float64) {
	m.bestProximity.WithLabelValues(side).Set(pct)
}

func (m *Metrics) SetPendingDepth(n int) {
	m.pendingDepth.Set(float64(n))
}

func (m *Metrics) CountTrade(side, status string) {
	m.tradesTotal.WithLabelValues(side, status).Inc()
}

func (m *Metrics) CountGasAbort() {
	m.gasAborts.Inc()
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
}
