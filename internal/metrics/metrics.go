// Package metrics exposes prometheus collectors for scans, provider calls and
// screener rejections.
package metrics

import (
	"net/http"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pmcc_scans_total", Help: "Completed scans by path"},
		[]string{"path"},
	)
	SymbolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pmcc_symbol_errors_total", Help: "Per-symbol scan failures by kind"},
		[]string{"kind"},
	)
	OpportunitiesFound = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pmcc_opportunities_found",
			Help:    "Opportunities returned per scan after ranking",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"path"},
	)
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pmcc_provider_requests_total", Help: "Provider requests by endpoint and outcome"},
		[]string{"endpoint", "outcome"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pmcc_screener_rejections_total", Help: "Store-path rejections by stage and reason"},
		[]string{"stage", "reason"},
	)
)

// NewRegistry registers every collector plus the Go and process collectors on a
// private registry.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		ScansTotal, SymbolErrorsTotal, OpportunitiesFound, ProviderRequestsTotal, RejectionsTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveScan records the outcome of a live scan.
func ObserveScan(opportunities int, errs []models.SymbolError) {
	ScansTotal.WithLabelValues("live").Inc()
	OpportunitiesFound.WithLabelValues("live").Observe(float64(opportunities))
	for _, se := range errs {
		kind := string(models.ProviderErrorKindOf(se.Err))
		if kind == "" {
			kind = "other"
			if models.IsValidationError(se.Err) {
				kind = "validation"
			}
		}
		SymbolErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveScreen records the outcome of a store-backed screen.
func ObserveScreen(opportunities int, stats *models.RejectionStats) {
	ScansTotal.WithLabelValues("store").Inc()
	OpportunitiesFound.WithLabelValues("store").Observe(float64(opportunities))
	if stats == nil {
		return
	}
	stats.Each(func(stage, reason string, n int) {
		if n > 0 {
			RejectionsTotal.WithLabelValues(stage, reason).Add(float64(n))
		}
	})
}

// ObserveProviderRequest counts one provider call.
func ObserveProviderRequest(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(models.ProviderErrorKindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	ProviderRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}
