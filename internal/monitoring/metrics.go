package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Market data metrics
	underlyingPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strangle_bot_underlying_price",
			Help: "Last traded price of the underlying",
		},
		[]string{"underlying"},
	)

	legPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strangle_bot_leg_price",
			Help: "Last traded price of a monitored leg",
		},
		[]string{"underlying", "side"},
	)

	smoothedLegPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strangle_bot_leg_price_smoothed",
			Help: "Exponentially smoothed price of a monitored leg",
		},
		[]string{"underlying", "side"},
	)

	impliedVol = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strangle_bot_implied_vol",
			Help: "Implied volatility of a monitored leg",
		},
		[]string{"underlying", "side"},
	)

	// Position metrics
	profitPoints = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strangle_bot_profit_points",
			Help: "Running mark-to-market profit in price points",
		},
		[]string{"underlying", "strategy"},
	)

	positionDelta = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strangle_bot_position_delta",
			Help: "Aggregate delta of the position in shares",
		},
		[]string{"underlying", "strategy"},
	)

	positionTheta = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strangle_bot_position_theta",
			Help: "Aggregate theta of the position",
		},
		[]string{"underlying", "strategy"},
	)

	// Lifecycle metrics
	stopLossesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strangle_bot_stop_losses_total",
			Help: "Total number of leg stop losses triggered",
		},
		[]string{"underlying", "side"},
	)

	reentriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strangle_bot_reentries_total",
			Help: "Total number of ladder reentries executed",
		},
		[]string{"underlying", "side"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strangle_bot_orders_total",
			Help: "Total number of instruction batches executed",
		},
		[]string{"underlying", "action"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strangle_bot_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(underlyingPrice)
	prometheus.MustRegister(legPrice)
	prometheus.MustRegister(smoothedLegPrice)
	prometheus.MustRegister(impliedVol)
	prometheus.MustRegister(profitPoints)
	prometheus.MustRegister(positionDelta)
	prometheus.MustRegister(positionTheta)
	prometheus.MustRegister(stopLossesTotal)
	prometheus.MustRegister(reentriesTotal)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// UpdateUnderlying updates the underlying price gauge
func UpdateUnderlying(underlying string, price float64) {
	underlyingPrice.WithLabelValues(underlying).Set(price)
}

// UpdateLeg updates the raw and smoothed leg price gauges
func UpdateLeg(underlying, side string, price, smoothed float64) {
	legPrice.WithLabelValues(underlying, side).Set(price)
	smoothedLegPrice.WithLabelValues(underlying, side).Set(smoothed)
}

// UpdateIV updates the implied vol gauge for one side
func UpdateIV(underlying, side string, iv float64) {
	impliedVol.WithLabelValues(underlying, side).Set(iv)
}

// UpdateProfit updates the running profit gauge
func UpdateProfit(underlying, strategy string, points float64) {
	profitPoints.WithLabelValues(underlying, strategy).Set(points)
}

// UpdateGreeks updates the aggregate sensitivity gauges
func UpdateGreeks(underlying, strategy string, delta, theta float64) {
	positionDelta.WithLabelValues(underlying, strategy).Set(delta)
	positionTheta.WithLabelValues(underlying, strategy).Set(theta)
}

// RecordStopLoss records a triggered leg stop loss
func RecordStopLoss(underlying, side string) {
	stopLossesTotal.WithLabelValues(underlying, side).Inc()
}

// RecordReentry records an executed ladder reentry
func RecordReentry(underlying, side string) {
	reentriesTotal.WithLabelValues(underlying, side).Inc()
}

// RecordOrder records an executed instruction batch
func RecordOrder(underlying, action string) {
	ordersTotal.WithLabelValues(underlying, action).Inc()
}

// RecordError records an error metric
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
