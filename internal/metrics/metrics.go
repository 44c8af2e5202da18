package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every console collector. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// InFlight mirrors the busy counter.
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "console",
		Name:      "operations_in_flight",
		Help:      "Number of list fetches currently holding the loading indicator.",
	})

	BackendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "console",
		Name:      "backend_requests_total",
		Help:      "Backend requests by method and outcome class.",
	}, []string{"method", "outcome"})

	BackendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "console",
		Name:      "backend_request_duration_seconds",
		Help:      "Backend request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "console",
		Name:      "token_refreshes_total",
		Help:      "Access token refresh attempts by result.",
	}, []string{"result"})

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "console",
		Name:      "form_submissions_total",
		Help:      "Form submissions by page, mode and result.",
	}, []string{"page", "mode", "result"})

	Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "console",
		Name:      "row_mutations_total",
		Help:      "Row deletes, toggles and imports by page, action and result.",
	}, []string{"page", "action", "result"})

	ActivityDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "console",
		Name:      "activity_dropped_total",
		Help:      "Activity entries dropped because the buffer was full.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		InFlight,
		BackendRequests,
		BackendLatency,
		TokenRefreshes,
		Submissions,
		Mutations,
		ActivityDropped,
	)
}

// Handler serves the console registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Result labels a boolean outcome.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
