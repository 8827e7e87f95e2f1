// Package metrics exposes Prometheus counters for call outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CallsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudcall_calls_started_total",
		Help: "Calls accepted by the agent.",
	})
	CallsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudcall_calls_completed_total",
		Help: "Calls that reached a transaction resolution.",
	})
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraudcall_resolutions_total",
		Help: "Case resolutions by disposition.",
	}, []string{"status"})
	LookupMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudcall_case_lookup_misses_total",
		Help: "Case lookups that found no record.",
	})
	VerificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudcall_verification_failures_total",
		Help: "Identity verification attempts that did not match.",
	})
	VerificationExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudcall_verification_exhausted_total",
		Help: "Calls that hit the verification attempt cap.",
	})
)

// Handler returns the HTTP handler serving the Prometheus export.
func Handler() http.Handler { return promhttp.Handler() }
