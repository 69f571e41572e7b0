// Package metrics exposes autoscaler activity as Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alarm_autoscaler"

// Recorder counts processed notifications by outcome. A nil *Recorder records nothing.
type Recorder struct {
	notifications prometheus.Counter
	decisions     *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	failures      *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications received from the queue.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Scaling decisions by outcome.",
		}, []string{"decision"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_total",
			Help:      "Notifications acknowledged without a scaling decision.",
		}, []string{"reason"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Collaborator failures by processing stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(r.notifications, r.decisions, r.discarded, r.failures)
	return r
}

func (r *Recorder) Notification() {
	if r == nil {
		return
	}
	r.notifications.Inc()
}

func (r *Recorder) Decision(decision string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) Discarded(reason string) {
	if r == nil {
		return
	}
	r.discarded.WithLabelValues(reason).Inc()
}

func (r *Recorder) Failure(stage string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(stage).Inc()
}

// NewRouter serves the gathered metrics at /metrics.
func NewRouter(gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}
