package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 拉取指标
	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	FetchMessages *prometheus.HistogramVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter

	// IMAP 会话指标
	IMAPSessionsTotal *prometheus.CounterVec
	IMAPSessionErrors *prometheus.CounterVec
	SentFolderMissing prometheus.Counter

	// 变更操作指标
	MessagesMarkedRead prometheus.Counter
	MessagesDeleted    prometheus.Counter
	MessagesSent       prometheus.Counter
	RepliesSent        prometheus.Counter

	// 后台同步指标
	SyncRunsTotal    *prometheus.CounterVec
	SyncAccountsLast prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		FetchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_fetch_total",
				Help: "Total number of mailbox fetches",
			},
			[]string{"result"},
		),

		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsync_fetch_duration_seconds",
				Help:    "Mailbox fetch duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"source"},
		),

		FetchMessages: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsync_fetch_messages",
				Help:    "Number of messages returned per fetch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"source"},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_cache_hits_total",
				Help: "Total number of fetch cache hits",
			},
		),

		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_cache_misses_total",
				Help: "Total number of fetch cache misses",
			},
		),

		IMAPSessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_imap_sessions_total",
				Help: "Total number of IMAP sessions established",
			},
			[]string{"operation"},
		),

		IMAPSessionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_imap_session_errors_total",
				Help: "Total number of IMAP session errors",
			},
			[]string{"operation"},
		),

		SentFolderMissing: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_sent_folder_missing_total",
				Help: "Fetches where no sent folder candidate was selectable",
			},
		),

		MessagesMarkedRead: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_messages_marked_read_total",
				Help: "Total number of messages marked as read",
			},
		),

		MessagesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_messages_deleted_total",
				Help: "Total number of messages deleted",
			},
		),

		MessagesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_messages_sent_total",
				Help: "Total number of messages sent",
			},
		),

		RepliesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_replies_sent_total",
				Help: "Total number of replies sent",
			},
		),

		SyncRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_sync_runs_total",
				Help: "Total number of background sync runs per account",
			},
			[]string{"result"},
		),

		SyncAccountsLast: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailsync_sync_accounts_last",
				Help: "Number of accounts processed in the last sync cycle",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordFetch 记录一次拉取的来源、结果与耗时
func (m *Metrics) RecordFetch(source, result string, count int, duration time.Duration) {
	m.FetchTotal.WithLabelValues(result).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	if result == "ok" {
		m.FetchMessages.WithLabelValues(source).Observe(float64(count))
	}
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordIMAPSession 记录 IMAP 会话建立
func (m *Metrics) RecordIMAPSession(operation string) {
	m.IMAPSessionsTotal.WithLabelValues(operation).Inc()
}

// RecordIMAPError 记录 IMAP 会话错误
func (m *Metrics) RecordIMAPError(operation string) {
	m.IMAPSessionErrors.WithLabelValues(operation).Inc()
}

// RecordMessageRead 记录标记已读
func (m *Metrics) RecordMessageRead() {
	m.MessagesMarkedRead.Inc()
}

// RecordMessageDeleted 记录邮件删除
func (m *Metrics) RecordMessageDeleted() {
	m.MessagesDeleted.Inc()
}

// RecordMessageSent 记录邮件发送
func (m *Metrics) RecordMessageSent() {
	m.MessagesSent.Inc()
}

// RecordReplySent 记录回复发送
func (m *Metrics) RecordReplySent() {
	m.RepliesSent.Inc()
}

// RecordSyncRun 记录一次后台同步结果
func (m *Metrics) RecordSyncRun(result string) {
	m.SyncRunsTotal.WithLabelValues(result).Inc()
}

// UpdateSyncAccounts 更新上一轮同步处理的账户数
func (m *Metrics) UpdateSyncAccounts(count int) {
	m.SyncAccountsLast.Set(float64(count))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
