package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Wallet
	RequestsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_requests_created_total",
			Help: "Total payment requests created",
		},
	)
	RequestsPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_requests_paid_total",
			Help: "Total payment requests settled to the ledger",
		},
	)
	WalletStateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_state_changes_total",
			Help: "Wallet request state transitions by target state",
		},
		[]string{"to"}, // accepted|paid|canceled|expired
	)

	// Moderation
	ReportStateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_state_changes_total",
			Help: "Report status overwrites by target status",
		},
		[]string{"to"},
	)
	ReportEscalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "report_escalations_total",
			Help: "Total report escalations",
		},
	)
	SLABreaches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sla_breaches_total",
			Help: "Total SLA breaches detected by the watcher",
		},
	)
	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Best-effort audit writes that failed",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsCreated)
	prometheus.MustRegister(RequestsPaid)
	prometheus.MustRegister(WalletStateChanges)
	prometheus.MustRegister(ReportStateChanges)
	prometheus.MustRegister(ReportEscalations)
	prometheus.MustRegister(SLABreaches)
	prometheus.MustRegister(AuditWriteFailures)
	prometheus.MustRegister(WorkerQueueDepth)
}
