// Package registry はフィード登録情報による継続エラーフィードの絞り込みを提供する。
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/feedaudit/internal/attribution"
	"github.com/hitoshi/feedaudit/internal/metrics"
	"github.com/hitoshi/feedaudit/internal/model"
)

// 除外理由（メトリクスのラベル値）
const (
	ReasonNotRegistered = "not_registered"
	ReasonNotAvailable  = "not_available"
)

// Lookup はフィードURLから登録情報を取得するインターフェース。
// repository.FeedRegistryRepositoryが実装する。
type Lookup interface {
	FindByFeedURL(ctx context.Context, feedURL string) (*model.RegistryRecord, error)
}

// Filter は登録情報が存在し、かつ利用不可でないフィードのみを残す。
type Filter struct {
	lookup  Lookup
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewFilter はFilterを生成する。mcがnilの場合はメトリクスを記録しない。
func NewFilter(lookup Lookup, mc metrics.MetricsCollector, logger *slog.Logger) *Filter {
	if mc == nil {
		mc = metrics.Noop{}
	}
	return &Filter{lookup: lookup, metrics: mc, logger: logger}
}

// Apply は判定結果を登録情報で絞り込み、入力順を保ったまま返す。
// 登録情報の取得に失敗した場合は処理全体を中断する。
func (f *Filter) Apply(ctx context.Context, feeds []attribution.Attributed) ([]attribution.Attributed, error) {
	kept := make([]attribution.Attributed, 0, len(feeds))
	for _, a := range feeds {
		feedURL := a.Aggregate.FeedURL

		rec, err := f.lookup.FindByFeedURL(ctx, feedURL)
		if err != nil {
			return nil, fmt.Errorf("フィード登録情報の取得に失敗しました (%s): %w", feedURL, err)
		}

		if rec == nil {
			f.exclude(feedURL, ReasonNotRegistered)
			continue
		}
		if !rec.IsAvailable() {
			f.exclude(feedURL, ReasonNotAvailable)
			continue
		}
		kept = append(kept, a)
	}
	return kept, nil
}

func (f *Filter) exclude(feedURL, reason string) {
	f.metrics.RecordFeedExcluded(reason)
	f.logger.Info("登録情報によりフィードを除外",
		slog.String("feed_url", feedURL),
		slog.String("reason", reason),
	)
}
