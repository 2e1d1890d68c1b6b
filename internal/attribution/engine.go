package attribution

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/feedaudit/internal/model"
)

// DefaultThresholdDays はエラー継続日数のデフォルトしきい値。
const DefaultThresholdDays = 24

// EventSource はステータスイベントを順に供給するインターフェース。
// repository.StatusLogRepositoryが実装する。
type EventSource interface {
	// ForEachEvent は全イベントを走査し、1件ごとにfnを呼び出す。
	// fnがエラーを返した場合は走査を中断してそのエラーを返す。
	ForEachEvent(ctx context.Context, fn func(model.StatusEvent) error) error
}

// Attributed はしきい値を超えてエラーが継続しているフィードの判定結果。
type Attributed struct {
	Aggregate      model.FeedAggregate
	ErrorStartDate time.Time
	DaysSinceStart int
}

// Engine はエラー帰属判定を行う。
type Engine struct {
	// ThresholdDays はエラー開始からの経過日数のしきい値。
	ThresholdDays int
}

// NewEngine はEngineを生成する。thresholdDaysが負の場合はエラーを返す。
func NewEngine(thresholdDays int) (*Engine, error) {
	if thresholdDays < 0 {
		return nil, model.NewInvalidThresholdError(fmt.Sprintf("%d", thresholdDays))
	}
	return &Engine{ThresholdDays: thresholdDays}, nil
}

// Cutoff はnowからしきい値日数を差し引いた判定基準日時を返す。
func (e *Engine) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(e.ThresholdDays) * 24 * time.Hour)
}

// Qualifies は集約結果が「継続的なエラー状態」にあるかを判定する。
// READING_ERRORが1件以上あり、ErrorStartDateが定義され、
// かつそれがCutoff以前である場合のみtrueを返す。
// 試行中エラーのみでREADING_ERRORがないフィードは対象外とする。
func (e *Engine) Qualifies(agg model.FeedAggregate, now time.Time) bool {
	if agg.ErrorCount == 0 {
		return false
	}
	if agg.ErrorStartDate == nil {
		// 最後の試行中エラーの後に復旧しており、新たなエラーがない
		return false
	}
	return !agg.ErrorStartDate.After(e.Cutoff(now))
}

// Attribute はイベントソースを走査してフィードごとに集約し、
// 継続的なエラー状態にあるフィードのみを出現順に返す。
func (e *Engine) Attribute(ctx context.Context, src EventSource, now time.Time) ([]Attributed, error) {
	g := newGrouper()
	err := src.ForEachEvent(ctx, func(ev model.StatusEvent) error {
		g.add(ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ステータスイベントの走査に失敗しました: %w", err)
	}

	var result []Attributed
	for _, agg := range g.aggregates() {
		if !e.Qualifies(agg, now) {
			continue
		}
		result = append(result, Attributed{
			Aggregate:      agg,
			ErrorStartDate: *agg.ErrorStartDate,
			DaysSinceStart: DaysSince(*agg.ErrorStartDate, now),
		})
	}
	return result, nil
}

// DaysSince はstartからnowまでの暦日数を返す。
// 両者をUTCの日付に切り捨てた上で差を取る。
func DaysSince(start, now time.Time) int {
	s := start.UTC()
	n := now.UTC()
	sd := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(nd.Sub(sd) / (24 * time.Hour))
}
