package quickmatch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	submitTotal    *prometheus.CounterVec
	responseTotal  *prometheus.CounterVec
	arbitrateTotal *prometheus.CounterVec
	sweepExpired   prometheus.Counter
	candidates     prometheus.Histogram
	publishDropped *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		submitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickmatch",
			Name:      "submit_total",
			Help:      "Booking request submissions by result.",
		}, []string{"result"}),
		responseTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickmatch",
			Name:      "response_total",
			Help:      "Business responses by action and result.",
		}, []string{"action", "result"}),
		arbitrateTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickmatch",
			Name:      "arbitration_total",
			Help:      "Terminal transition attempts by operation and outcome.",
		}, []string{"op", "outcome"}),
		sweepExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "quickmatch",
			Name:      "sweeper_expired_total",
			Help:      "Requests moved to expired by the sweeper.",
		}),
		candidates: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quickmatch",
			Name:      "candidates",
			Help:      "Number of businesses notified per submitted request.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		publishDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickmatch",
			Name:      "publish_dropped_total",
			Help:      "Notifications the gateway failed to deliver, by event.",
		}, []string{"event"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
