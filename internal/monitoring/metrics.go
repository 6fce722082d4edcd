package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ScrapesTotal *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec
	TierTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ScrapesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ratewatch_scrapes_total",
			Help: "The total number of scrape attempts",
		}, nil),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ratewatch_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'navigation_failed', 'db_save_failed'
		TierTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ratewatch_calendar_tier_total",
			Help: "Which acquisition tier produced the availability calendar",
		}, []string{"tier"}), // 'intercept', 'replay', 'dom', 'none'
	}
}

func (m *Metrics) IncScrapesTotal() {
	m.ScrapesTotal.WithLabelValues().Inc()
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncTierTotal(tier string) {
	m.TierTotal.WithLabelValues(tier).Inc()
}
