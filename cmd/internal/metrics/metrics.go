// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forum"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	votes      *prometheus.CounterVec
	voteRetry  prometheus.Counter
	auth       *prometheus.CounterVec
	httpReqs   *prometheus.CounterVec
	liveOnline prometheus.Gauge
}

// New builds a private registry with Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Vote casts by result.",
		}, []string{"result"}),
		voteRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_tx_retries_total",
			Help:      "Vote transactions retried after a transient error.",
		}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_total",
			Help:      "Auth endpoint attempts by op and result.",
		}, []string{"op", "result"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		liveOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Connected live vote feed subscribers.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.votes,
		m.voteRetry,
		m.auth,
		m.httpReqs,
		m.liveOnline,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) VoteResult(result string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(result).Inc()
}

func (m *Metrics) VoteRetry() {
	if m == nil {
		return
	}
	m.voteRetry.Inc()
}

func (m *Metrics) AuthResult(op, result string) {
	if m == nil {
		return
	}
	m.auth.WithLabelValues(op, result).Inc()
}

func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpReqs.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) LiveSubscribers(delta int) {
	if m == nil {
		return
	}
	m.liveOnline.Add(float64(delta))
}
