// Package management implements the mount's external management surface:
// a small HTTP endpoint exposing mount status, Prometheus metrics, and a
// graceful-shutdown trigger, the seam a thrift-style endpoint would call
// into if one existed in this repo.
package management

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edenfs_ops_total",
			Help: "Total number of kernel ops handled, by op name and outcome.",
		},
		[]string{"op", "outcome"},
	)

	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edenfs_op_duration_seconds",
			Help:    "Kernel op handling latency in seconds, by op name.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	JournalDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edenfs_journal_depth",
			Help: "Number of deltas currently retained in the journal ring.",
		},
	)

	InodesLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edenfs_inodes_live",
			Help: "Number of inodes currently registered in the inode map.",
		},
	)
)

func init() {
	prometheus.MustRegister(OpsTotal)
	prometheus.MustRegister(OpDuration)
	prometheus.MustRegister(JournalDepth)
	prometheus.MustRegister(InodesLive)
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// OpTimer times one kernel op handler and records both its latency and its
// outcome when Observe is called.
type OpTimer struct {
	op    string
	start time.Time
}

// StartOp begins timing op.
func StartOp(op string) OpTimer {
	return OpTimer{op: op, start: time.Now()}
}

// Observe records the op's duration and, if err is non-nil, counts it as a
// failure rather than a success.
func (t OpTimer) Observe(err error) {
	OpDuration.WithLabelValues(t.op).Observe(time.Since(t.start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OpsTotal.WithLabelValues(t.op, outcome).Inc()
}
