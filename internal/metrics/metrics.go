// Package metrics exposes Prometheus gauges/counters for the ingester,
// scraped at GET /metrics the way the teacher's web server mounts
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HostsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infra_mapper_hosts_total",
		Help: "Total number of known hosts.",
	})
	HostsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infra_mapper_hosts_online",
		Help: "Number of hosts currently online.",
	})
	ContainersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infra_mapper_containers_total",
		Help: "Total number of containers across all hosts.",
	})
	ConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infra_mapper_connections_total",
		Help: "Total number of persisted connections across all hosts.",
	})
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infra_mapper_reports_total",
		Help: "Total number of ingested agent reports by outcome.",
	}, []string{"outcome"})
	ReportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "infra_mapper_report_ingest_duration_seconds",
		Help:    "Duration of report reconciliation on the ingester.",
		Buckets: prometheus.DefBuckets,
	})
	AlertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infra_mapper_alerts_fired_total",
		Help: "Total number of alerts fired by rule type.",
	}, []string{"rule_type"})
	AlertsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infra_mapper_alerts_active",
		Help: "Number of currently active alerts.",
	})
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infra_mapper_notifications_total",
		Help: "Total number of alert notification attempts by channel type and outcome.",
	}, []string{"channel_type", "outcome"})
	LogSinkSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infra_mapper_log_sink_sends_total",
		Help: "Total number of log batch sends by sink type and outcome.",
	}, []string{"sink_type", "outcome"})
	WebSocketSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infra_mapper_ws_subscribers",
		Help: "Number of connected realtime WebSocket subscribers.",
	})
)
