// Package audit は継続エラーフィードの監査処理（帰属判定、登録情報による絞り込み、
// エラー種別の分類、レポート作成）を1回の実行としてまとめる。
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feedaudit/internal/attribution"
	"github.com/hitoshi/feedaudit/internal/metrics"
	"github.com/hitoshi/feedaudit/internal/model"
	"github.com/hitoshi/feedaudit/internal/probe"
	"github.com/hitoshi/feedaudit/internal/registry"
)

// Session は1回の実行で使うイベントログと登録情報。
// Closeは実行の終了時に必ず呼ばれる。
type Session struct {
	Events   attribution.EventSource
	Registry registry.Lookup
	Close    func(ctx context.Context) error
}

// Opener は実行ごとにSessionを開く関数。
type Opener func(ctx context.Context) (*Session, error)

// Classifier はフィードURLのエラー種別を判定するインターフェース。
// probe.Classifierが実装する。
type Classifier interface {
	Classify(ctx context.Context, feedURL string) probe.Result
}

// Result は1回の実行結果。
type Result struct {
	RunID         string
	GeneratedAt   time.Time
	ThresholdDays int
	Rows          []model.ErrorReportRow
}

// Service は監査処理を実行する。
// 同時に複数の実行要求があった場合は1件ずつ順に処理する。
type Service struct {
	open       Opener
	classifier Classifier
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	pacer      *rate.Limiter
	now        func() time.Time

	mu sync.Mutex
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithProbeInterval はURL確認の間隔を設定する。0以下の場合は間隔を空けない。
func WithProbeInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.pacer = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(open Opener, classifier Classifier, mc metrics.MetricsCollector, logger *slog.Logger, opts ...Option) *Service {
	if mc == nil {
		mc = metrics.Noop{}
	}
	s := &Service{
		open:       open,
		classifier: classifier,
		metrics:    mc,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run はしきい値日数を超えてエラーが継続しているフィードを抽出し、エラー種別を付けて返す。
func (s *Service) Run(ctx context.Context, thresholdDays int) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res, err := s.run(ctx, thresholdDays)
	if err != nil {
		s.metrics.RecordRun("failure", time.Since(start))
		return nil, err
	}
	s.metrics.RecordRun("success", time.Since(start))
	return res, nil
}

func (s *Service) run(ctx context.Context, thresholdDays int) (*Result, error) {
	started := time.Now()
	engine, err := attribution.NewEngine(thresholdDays)
	if err != nil {
		return nil, err
	}

	now := s.now()
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))

	logger.Info("監査を開始しました",
		slog.Int("threshold_days", thresholdDays),
		slog.Time("cutoff", engine.Cutoff(now)),
	)

	sess, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if sess.Close == nil {
			return
		}
		if cerr := sess.Close(context.Background()); cerr != nil {
			logger.Warn("イベントログソースのクローズに失敗しました", slog.String("error", cerr.Error()))
		}
	}()

	attributed, err := engine.Attribute(ctx, sess.Events, now)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordFeedsQualified(len(attributed))

	kept, err := registry.NewFilter(sess.Registry, s.metrics, logger).Apply(ctx, attributed)
	if err != nil {
		return nil, err
	}

	logger.Info("エラー種別の判定を開始します",
		slog.Int("qualified", len(attributed)),
		slog.Int("target", len(kept)),
	)

	rows := make([]model.ErrorReportRow, 0, len(kept))
	for _, a := range kept {
		if s.pacer != nil {
			if err := s.pacer.Wait(ctx); err != nil {
				return nil, fmt.Errorf("監査が中断されました: %w", err)
			}
		}

		feedURL := a.Aggregate.FeedURL
		pr := s.classifier.Classify(ctx, feedURL)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("監査が中断されました: %w", err)
		}
		s.metrics.RecordProbeResult(pr.Category(), pr.Latency)

		logger.Info("フィードのエラー種別を判定しました",
			slog.String("feed_url", feedURL),
			slog.Time("error_start_date", a.ErrorStartDate),
			slog.Int("days_since_start", a.DaysSinceStart),
			slog.String("error_type", pr.Label),
			slog.String("detail", pr.Detail),
		)

		rows = append(rows, model.ErrorReportRow{
			FeedURL:        feedURL,
			ErrorStartDate: a.ErrorStartDate,
			DaysSinceStart: a.DaysSinceStart,
			ErrorType:      pr.Label,
		})
	}

	logger.Info("監査が完了しました",
		slog.Int("feeds", len(rows)),
		slog.Float64("duration_ms", float64(time.Since(started).Milliseconds())),
	)

	return &Result{
		RunID:         runID,
		GeneratedAt:   now,
		ThresholdDays: thresholdDays,
		Rows:          rows,
	}, nil
}
