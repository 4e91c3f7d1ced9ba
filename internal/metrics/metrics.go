// Package metrics registers the Prometheus collectors named in spec.md
// section 6, following the registerMetrics pattern of the server this
// project grew out of: one package-level Metrics struct, constructed
// once and registered against a dedicated registry so tests can create
// independent instances without colliding on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the daemon exposes.
type Metrics struct {
	Registry *prometheus.Registry

	ProtocolVersion        prometheus.Gauge
	LastReadPerSource      *prometheus.GaugeVec
	ReadFailuresPerSource  *prometheus.CounterVec
	LastSubmittedNumerator prometheus.Gauge
	LastSubmittedDenominator prometheus.Gauge
	SubmissionsTotal       prometheus.Counter
	SubmissionsFailedTotal prometheus.Counter
	WarnTotal              prometheus.Counter
	HaltTotal              prometheus.Counter
	DryRunActive           prometheus.Gauge
}

// New constructs and registers every collector against a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ProtocolVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "protocol_version",
			Help: "Chain protocol version reported by the last reachable node.",
		}),
		LastReadPerSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "last_read_per_source",
			Help: "Most recent successfully parsed EUR-per-CCD reading, by source.",
		}, []string{"source"}),
		ReadFailuresPerSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "read_failures_per_source",
			Help: "Count of failed poll attempts, by source.",
		}, []string{"source"}),
		LastSubmittedNumerator: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "last_submitted_rate_numerator",
			Help: "Numerator of the last successfully submitted on-chain rate.",
		}),
		LastSubmittedDenominator: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "last_submitted_rate_denominator",
			Help: "Denominator of the last successfully submitted on-chain rate.",
		}),
		SubmissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Count of chain-update submissions accepted (including duplicate-sequence successes).",
		}),
		SubmissionsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "submissions_failed_total",
			Help: "Count of update ticks whose submission failed: rejected by the chain, or not completed by any configured node.",
		}),
		WarnTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warn_total",
			Help: "Count of update ticks classified Warn by the safety governor.",
		}),
		HaltTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "halt_total",
			Help: "Count of update ticks classified Halt by the safety governor.",
		}),
		DryRunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dry_run_active",
			Help: "1 if the process is currently in dry-run (configured or forced), else 0.",
		}),
	}

	reg.MustRegister(
		m.ProtocolVersion,
		m.LastReadPerSource,
		m.ReadFailuresPerSource,
		m.LastSubmittedNumerator,
		m.LastSubmittedDenominator,
		m.SubmissionsTotal,
		m.SubmissionsFailedTotal,
		m.WarnTotal,
		m.HaltTotal,
		m.DryRunActive,
	)

	return m
}
