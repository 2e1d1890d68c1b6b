// Package attribution はフィードのステータスイベントからエラーエピソードを特定する。
// フィードが現在も未解決の読み込みエラー状態にあるか、
// またそのエピソードがいつ始まったかを判定する。
package attribution

import (
	"sort"
	"time"

	"github.com/hitoshi/feedaudit/internal/model"
)

// Accumulator は1フィード分のイベントを1パスで畳み込む。
// 件数・条件付き合計・最小/最大・収集のみで構成されるため、
// イベントの投入順序は結果に影響しない。
type Accumulator struct {
	agg model.FeedAggregate
}

// NewAccumulator は指定フィードURLのAccumulatorを生成する。
func NewAccumulator(feedURL string) *Accumulator {
	return &Accumulator{agg: model.FeedAggregate{FeedURL: feedURL}}
}

// Add はイベントを1件集約に反映する。
func (a *Accumulator) Add(ev model.StatusEvent) {
	a.agg.TotalEvents++

	switch ev.Status {
	case model.FeedStatusReadingError:
		a.agg.ErrorCount++
	case model.FeedStatusReadingErrorDuringAttempt:
		d := ev.Date
		if a.agg.EarliestAttemptErrorDate == nil || d.Before(*a.agg.EarliestAttemptErrorDate) {
			a.agg.EarliestAttemptErrorDate = &d
		}
		a.agg.AttemptErrorDates = append(a.agg.AttemptErrorDates, d)
	case model.FeedStatusIdle:
		d := ev.Date
		if a.agg.LatestIdleDate == nil || d.After(*a.agg.LatestIdleDate) {
			a.agg.LatestIdleDate = &d
		}
	}
}

// Aggregate は集約結果を返す。ErrorStartDateはここで導出される。
// 返り値は内部状態のコピーであり、呼び出し後もAddを継続できる。
func (a *Accumulator) Aggregate() model.FeedAggregate {
	agg := a.agg
	agg.AttemptErrorDates = orderedSet(a.agg.AttemptErrorDates)
	agg.ErrorStartDate = deriveErrorStart(&agg)
	return agg
}

// deriveErrorStart は現在のエラーエピソードの開始日時を導出する。
//   - IDLEが一度もない: 最も古い試行中エラー
//   - それ以外: 最新のIDLEより厳密に後の試行中エラーのうち最小のもの（なければ未定義）
func deriveErrorStart(agg *model.FeedAggregate) *time.Time {
	if agg.ErrorCount == 0 {
		return nil
	}

	if agg.LatestIdleDate == nil {
		if agg.EarliestAttemptErrorDate == nil {
			return nil
		}
		d := *agg.EarliestAttemptErrorDate
		return &d
	}

	idle := *agg.LatestIdleDate
	for _, d := range agg.AttemptErrorDates {
		// AttemptErrorDatesは昇順なので最初に見つかったものが最小
		if d.After(idle) {
			start := d
			return &start
		}
	}
	return nil
}

// orderedSet は日時を昇順に並べ、重複を取り除いたコピーを返す。
func orderedSet(dates []time.Time) []time.Time {
	if len(dates) == 0 {
		return nil
	}
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	out := sorted[:1]
	for _, d := range sorted[1:] {
		if !d.Equal(out[len(out)-1]) {
			out = append(out, d)
		}
	}
	return out
}

// grouper はイベントをフィードごとのAccumulatorに振り分け、初出順を記録する。
type grouper struct {
	order []string
	accs  map[string]*Accumulator
}

func newGrouper() *grouper {
	return &grouper{accs: make(map[string]*Accumulator)}
}

func (g *grouper) add(ev model.StatusEvent) {
	acc, ok := g.accs[ev.FeedURL]
	if !ok {
		acc = NewAccumulator(ev.FeedURL)
		g.accs[ev.FeedURL] = acc
		g.order = append(g.order, ev.FeedURL)
	}
	acc.Add(ev)
}

// aggregates はフィードが最初に出現した順に集約結果を返す。
func (g *grouper) aggregates() []model.FeedAggregate {
	aggs := make([]model.FeedAggregate, 0, len(g.order))
	for _, feedURL := range g.order {
		aggs = append(aggs, g.accs[feedURL].Aggregate())
	}
	return aggs
}

// Fold はイベント列をフィードごとに集約する。
// 結果はフィードが最初に出現した順に並ぶ。
func Fold(events []model.StatusEvent) []model.FeedAggregate {
	g := newGrouper()
	for _, ev := range events {
		g.add(ev)
	}
	return g.aggregates()
}
