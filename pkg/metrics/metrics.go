// Package metrics registers the Prometheus collectors exported by the
// settlement engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseConnectionsGauge tracks pool state by connection status
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stakevine_database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})

	// JobRunsTotal counts scheduled job executions by job id and outcome
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stakevine_job_runs_total",
		Help: "Scheduled job executions by outcome",
	}, []string{"job_id", "outcome"})

	// JobQueueDepth tracks pending job executions per job id
	JobQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stakevine_job_queue_depth",
		Help: "Pending executions per scheduled job",
	}, []string{"job_id"})

	// WebhookSignatureRejects counts chain-watch notifications that failed
	// signature verification
	WebhookSignatureRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stakevine_webhook_signature_rejects_total",
		Help: "Chain-watch notifications with invalid signatures",
	})

	// CommissionsEmitted counts commission rows created by level
	CommissionsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stakevine_commissions_emitted_total",
		Help: "Commission records created by network level",
	}, []string{"level"})

	// WithdrawalsProcessed counts withdrawal settlements by terminal status
	WithdrawalsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stakevine_withdrawals_processed_total",
		Help: "Withdrawal settlement attempts by result",
	}, []string{"result"})

	// BatchCollectWallets counts per-wallet sweep outcomes
	BatchCollectWallets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stakevine_batch_collect_wallets_total",
		Help: "Batch collect wallet sweeps by phase and outcome",
	}, []string{"phase", "outcome"})
)
