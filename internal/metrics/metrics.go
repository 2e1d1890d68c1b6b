// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 監査パイプラインや登録情報フィルタから利用する。
type MetricsCollector interface {
	RecordRun(result string, duration time.Duration)
	RecordFeedsQualified(count int)
	RecordFeedExcluded(reason string)
	RecordProbeResult(category string, latency time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	feedsQualified prometheus.Counter
	feedsExcluded  *prometheus.CounterVec
	probeResults   *prometheus.CounterVec
	probeLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedaudit_runs_total",
			Help: "監査実行の合計数",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedaudit_run_duration_seconds",
			Help:    "監査実行1回あたりの所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		feedsQualified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedaudit_feeds_qualified_total",
			Help: "しきい値を超えてエラーが継続していたフィードの合計数",
		}),
		feedsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedaudit_feeds_excluded_total",
			Help: "登録情報により除外されたフィード数",
		}, []string{"reason"}),
		probeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedaudit_probe_results_total",
			Help: "エラー種別分類の結果カテゴリ別件数",
		}, []string{"category"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedaudit_probe_latency_seconds",
			Help:    "フィードURL確認のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.runs,
		c.runDuration,
		c.feedsQualified,
		c.feedsExcluded,
		c.probeResults,
		c.probeLatency,
	)

	return c
}

// RecordRun は監査実行の結果と所要時間を記録する。
func (c *Collector) RecordRun(result string, duration time.Duration) {
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordFeedsQualified は継続エラーと判定されたフィード数を加算する。
func (c *Collector) RecordFeedsQualified(count int) {
	c.feedsQualified.Add(float64(count))
}

// RecordFeedExcluded は登録情報による除外を記録する。
func (c *Collector) RecordFeedExcluded(reason string) {
	c.feedsExcluded.WithLabelValues(reason).Inc()
}

// RecordProbeResult はエラー種別分類の結果を記録する。
// categoryにはラベルの先頭部分（例: ERROR_404, REQUEST_FAILED）を渡す。
func (c *Collector) RecordProbeResult(category string, latency time.Duration) {
	c.probeResults.WithLabelValues(category).Inc()
	c.probeLatency.Observe(latency.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop は何も記録しないMetricsCollector。
// メトリクスを公開しないCLI実行やテストで使用する。
type Noop struct{}

func (Noop) RecordRun(string, time.Duration)         {}
func (Noop) RecordFeedsQualified(int)                {}
func (Noop) RecordFeedExcluded(string)               {}
func (Noop) RecordProbeResult(string, time.Duration) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
