package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 阶段处理延迟（毫秒）
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_latency_ms",
			Help:    "Stage handler latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"stage", "outcome"}, // outcome: success, transient, permanent
	)

	// 同步拉取的变更数
	SyncChangesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_changes_fetched_total",
			Help: "Total number of mailbox changes fetched by sync passes",
		},
		[]string{"mode"}, // mode: bootstrap, incremental
	)

	// 需要全量重建的次数
	SyncResyncRequired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_resync_required_total",
			Help: "Total number of history-expired signals requiring full resync",
		},
	)

	// DLQ 捕获计数
	DLQCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_captured_total",
			Help: "Total number of permanently failed stage executions captured",
		},
		[]string{"stage", "reason"},
	)

	// DLQ 重放计数
	DLQReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_replayed_total",
			Help: "Total number of DLQ items re-enqueued",
		},
	)

	// Kill switch 拒绝计数
	KillSwitchDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killswitch_denied_total",
			Help: "Total number of disabled kill-switch decisions",
		},
		[]string{"control", "reason"},
	)

	// 草稿写回计数
	DraftUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draft_upserts_total",
			Help: "Total number of draft upserts by action",
		},
		[]string{"action"}, // created, updated, skipped
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of slow database queries",
		},
	)
)

// RecordStageLatency 记录阶段处理延迟
func RecordStageLatency(stage, outcome string, duration time.Duration) {
	StageLatency.WithLabelValues(stage, outcome).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}
