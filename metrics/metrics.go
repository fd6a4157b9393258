// Package metrics exports the data plane's per-session counters over
// Prometheus, the same way ptp/sptp exposes its own counters: an
// in-process registry scraped over HTTP rather than pushed anywhere.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Registry wraps a dedicated prometheus.Registry (never the global
// default one, so multiple st2110d instances in one test binary don't
// collide) plus the gauge/counter vectors the data plane updates.
type Registry struct {
	reg *prometheus.Registry

	drops       *prometheus.CounterVec
	schedBudget *prometheus.GaugeVec
	ebuMax      *prometheus.GaugeVec
	ptpOffset   prometheus.Gauge
	ptpState    prometheus.Gauge
}

// NewRegistry builds and registers every metric this module exports.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.drops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "st2110",
		Name:      "packet_drops_total",
		Help:      "Packets dropped by reason, per session.",
	}, []string{"session", "reason"})

	r.schedBudget = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "st2110",
		Name:      "scheduler_budget_bytes",
		Help:      "Remaining TPRS token-bucket budget per lcore ring.",
	}, []string{"lcore", "ring"})

	r.ebuMax = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "st2110",
		Name:      "ebu_window_max",
		Help:      "Max value observed in the last EBU measurement window, per session and cluster.",
	}, []string{"session", "cluster"})

	r.ptpOffset = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "st2110",
		Name:      "ptp_offset_ns",
		Help:      "Last computed offset to the PTP master, in nanoseconds.",
	})

	r.ptpState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "st2110",
		Name:      "ptp_slave_state",
		Help:      "Current ptpengine.SlaveState as an integer.",
	})

	r.reg.MustRegister(r.drops, r.schedBudget, r.ebuMax, r.ptpOffset, r.ptpState)
	return r
}

// IncDrop records one dropped packet for sessionID/reason.
func (r *Registry) IncDrop(sessionID int, reason string) {
	r.drops.WithLabelValues(fmt.Sprint(sessionID), reason).Inc()
}

// SetSchedulerBudget records an lcore ring's remaining byte budget.
func (r *Registry) SetSchedulerBudget(lcoreID, ringID int, bytes int64) {
	r.schedBudget.WithLabelValues(fmt.Sprint(lcoreID), fmt.Sprint(ringID)).Set(float64(bytes))
}

// SetEBUMax records one EBU accumulator cluster's window max.
func (r *Registry) SetEBUMax(sessionID int, cluster string, max float64) {
	r.ebuMax.WithLabelValues(fmt.Sprint(sessionID), cluster).Set(max)
}

// SetPTPOffset records the latest PTP master offset.
func (r *Registry) SetPTPOffset(ns float64) {
	r.ptpOffset.Set(ns)
}

// SetPTPState records the PTP slave's current lifecycle state.
func (r *Registry) SetPTPState(state int) {
	r.ptpState.Set(float64(state))
}

// Serve starts the HTTP /metrics endpoint and blocks. Intended to be run
// in its own goroutine by the caller.
func (r *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	log.Infof("metrics: serving prometheus endpoint on %s", addr)
	return http.ListenAndServe(addr, mux)
}
