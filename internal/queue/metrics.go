package queue

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "blinds",
			Name:      "queue_depth",
			Help:      "Ready tasks waiting per kind",
		},
		[]string{"kind"},
	)
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blinds",
			Name:      "queue_processed_total",
			Help:      "Task deliveries grouped by outcome (ok, retry, dlq)",
		},
		[]string{"kind", "status"},
	)
	QueueDLQSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "blinds",
			Name:      "queue_dlq_size",
			Help:      "Tasks parked in the dead letter store",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth, QueueProcessedTotal, QueueDLQSize)
}

func queueLabel(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "unknown"
	}
	return kind
}

func countProcessed(kind, status string) {
	if QueueProcessedTotal == nil {
		return
	}
	QueueProcessedTotal.WithLabelValues(queueLabel(kind), status).Inc()
}
