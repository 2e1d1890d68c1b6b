// Package schedule は監査レポートの定期実行を提供する。
package schedule

import (
	"context"
	"log/slog"
	"time"
)

// ReportService はレポート作成の実行インターフェース。
type ReportService interface {
	// Report は監査を1回実行し、書き出したレポートのパスを返す。
	Report(ctx context.Context, thresholdDays int) ([]string, error)
}

// Scheduler は一定間隔でレポートを作成する。
// 実行は1件ずつ順に行い、前回の実行が終わるまで次の実行は始めない。
type Scheduler struct {
	service       ReportService
	thresholdDays int
	logger        *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(service ReportService, thresholdDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:       service,
		thresholdDays: thresholdDays,
		logger:        logger,
	}
}

// Start はintervalごとのティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("レポートスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("threshold_days", s.thresholdDays),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("レポートスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("レポート作成に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はレポートを1回作成する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	paths, err := s.service.Report(ctx, s.thresholdDays)
	if err != nil {
		return err
	}

	s.logger.Info("レポート作成が完了しました",
		slog.Any("files", paths),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
