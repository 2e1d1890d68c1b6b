package attribution

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/feedaudit/internal/model"
)

// sliceSource はEventSourceのテスト用実装。
type sliceSource struct {
	events []model.StatusEvent
	err    error
}

func (s *sliceSource) ForEachEvent(_ context.Context, fn func(model.StatusEvent) error) error {
	if s.err != nil {
		return s.err
	}
	for _, e := range s.events {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func newEngine(t *testing.T, days int) *Engine {
	t.Helper()
	e, err := NewEngine(days)
	if err != nil {
		t.Fatalf("NewEngine(%d) returned error: %v", days, err)
	}
	return e
}

func TestNewEngine_RejectsNegativeThreshold(t *testing.T) {
	_, err := NewEngine(-1)
	if err == nil {
		t.Fatal("NewEngine(-1) should return error")
	}
	var auditErr *model.AuditError
	if !errors.As(err, &auditErr) || auditErr.Code != model.ErrCodeInvalidThreshold {
		t.Errorf("error = %v, want INVALID_THRESHOLD", err)
	}
}

func TestEngine_Cutoff(t *testing.T) {
	e := newEngine(t, 24)
	if got := e.Cutoff(day(30)); !got.Equal(day(6)) {
		t.Errorf("Cutoff = %v, want %v", got, day(6))
	}
}

func TestEngine_Qualifies_NeverRecovered(t *testing.T) {
	e := newEngine(t, 24)
	agg := aggregate(
		ev(model.FeedStatusReadingErrorDuringAttempt, day(0)),
		ev(model.FeedStatusReadingError, day(0)),
	)
	if !e.Qualifies(agg, day(30)) {
		t.Error("一度も復旧していないフィードは対象になるべき")
	}
}

func TestEngine_Qualifies_RecoveredAfterAllErrors(t *testing.T) {
	e := newEngine(t, 24)
	agg := aggregate(
		ev(model.FeedStatusReadingErrorDuringAttempt, day(0)),
		ev(model.FeedStatusReadingError, day(0)),
		ev(model.FeedStatusIdle, day(1)),
	)
	if e.Qualifies(agg, day(60)) {
		t.Error("最後のエラーの後に復旧したフィードは対象外であるべき")
	}
}

func TestEngine_Qualifies_ZeroReadingErrors(t *testing.T) {
	e := newEngine(t, 24)
	agg := aggregate(
		ev(model.FeedStatusReadingErrorDuringAttempt, day(0)),
		ev(model.FeedStatusReadingErrorDuringAttempt, day(1)),
	)
	if e.Qualifies(agg, day(90)) {
		t.Error("READING_ERRORが0件のフィードは試行中エラーがあっても対象外であるべき")
	}
}

// READING_ERRORがあっても試行中エラーがない場合はErrorStartDateが未定義となり対象外
func TestEngine_Qualifies_ReadingErrorWithoutAttemptErrors(t *testing.T) {
	e := newEngine(t, 0)
	agg := aggregate(ev(model.FeedStatusReadingError, day(0)))
	if e.Qualifies(agg, day(90)) {
		t.Error("ErrorStartDateが未定義のフィードは対象外であるべき")
	}
}

func TestEngine_Qualifies_Boundary(t *testing.T) {
	e := newEngine(t, 24)
	agg := aggregate(
		ev(model.FeedStatusReadingErrorDuringAttempt, day(6)),
		ev(model.FeedStatusReadingError, day(6)),
	)

	// ちょうどしきい値の日時は対象（<=）
	if !e.Qualifies(agg, day(30)) {
		t.Error("ErrorStartDate == cutoff は対象になるべき")
	}
	// 1秒でも新しければ対象外
	if e.Qualifies(agg, day(30).Add(-time.Second)) {
		t.Error("ErrorStartDate > cutoff は対象外であるべき")
	}
}

func TestEngine_Qualifies_ThresholdIsConfigurable(t *testing.T) {
	agg := aggregate(
		ev(model.FeedStatusReadingErrorDuringAttempt, day(0)),
		ev(model.FeedStatusReadingError, day(0)),
	)
	now := day(10)

	if newEngine(t, 24).Qualifies(agg, now) {
		t.Error("24日しきい値では10日経過のフィードは対象外")
	}
	if !newEngine(t, 7).Qualifies(agg, now) {
		t.Error("7日しきい値では10日経過のフィードは対象")
	}
}

func TestDaysSince(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		now   time.Time
		want  int
	}{
		{"same instant", day(0), day(0), 0},
		{"29 days", day(1), day(30), 29},
		{"crosses midnight", time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC), time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC), 1},
		{"same calendar day", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC), 0},
		{"non-UTC input", time.Date(2025, 1, 2, 8, 0, 0, 0, time.FixedZone("JST", 9*3600)), time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysSince(tt.start, tt.now); got != tt.want {
				t.Errorf("DaysSince = %d, want %d", got, tt.want)
			}
		})
	}
}

// フィードA: [IDLE@d0, 試行中エラー@d0+1, READING_ERROR@d0+1]、しきい値24日、now=d0+30
func TestEngine_Attribute_EndToEndScenario(t *testing.T) {
	src := &sliceSource{events: []model.StatusEvent{
		{FeedURL: "A", Status: model.FeedStatusIdle, Date: day(0)},
		{FeedURL: "A", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(1)},
		{FeedURL: "A", Status: model.FeedStatusReadingError, Date: day(1)},
	}}

	got, err := newEngine(t, 24).Attribute(context.Background(), src, day(30))
	if err != nil {
		t.Fatalf("Attribute returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Aggregate.FeedURL != "A" {
		t.Errorf("FeedURL = %q, want A", got[0].Aggregate.FeedURL)
	}
	if !got[0].ErrorStartDate.Equal(day(1)) {
		t.Errorf("ErrorStartDate = %v, want %v", got[0].ErrorStartDate, day(1))
	}
	if got[0].DaysSinceStart != 29 {
		t.Errorf("DaysSinceStart = %d, want 29", got[0].DaysSinceStart)
	}
}

func TestEngine_Attribute_FiltersAndKeepsOrder(t *testing.T) {
	src := &sliceSource{events: []model.StatusEvent{
		// recovered: 対象外
		{FeedURL: "recovered", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(0)},
		{FeedURL: "recovered", Status: model.FeedStatusReadingError, Date: day(0)},
		{FeedURL: "recovered", Status: model.FeedStatusIdle, Date: day(2)},
		// z-failing: 対象
		{FeedURL: "z-failing", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(1)},
		{FeedURL: "z-failing", Status: model.FeedStatusReadingError, Date: day(1)},
		// attempt-only: 対象外
		{FeedURL: "attempt-only", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(0)},
		// recent: しきい値未満
		{FeedURL: "recent", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(20)},
		{FeedURL: "recent", Status: model.FeedStatusReadingError, Date: day(20)},
		// a-failing: 対象
		{FeedURL: "a-failing", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(2)},
		{FeedURL: "a-failing", Status: model.FeedStatusReadingError, Date: day(3)},
	}}

	got, err := newEngine(t, 24).Attribute(context.Background(), src, day(30))
	if err != nil {
		t.Fatalf("Attribute returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2: %+v", len(got), got)
	}
	if got[0].Aggregate.FeedURL != "z-failing" || got[1].Aggregate.FeedURL != "a-failing" {
		t.Errorf("order = [%s %s], want source order [z-failing a-failing]",
			got[0].Aggregate.FeedURL, got[1].Aggregate.FeedURL)
	}
}

func TestEngine_Attribute_PropagatesSourceError(t *testing.T) {
	srcErr := errors.New("cursor closed")
	_, err := newEngine(t, 24).Attribute(context.Background(), &sliceSource{err: srcErr}, day(30))
	if !errors.Is(err, srcErr) {
		t.Errorf("error = %v, want wrapped %v", err, srcErr)
	}
}

// TestEngine_Attribute_MatchesFold はフィードが交互に現れるイベント列でも
// AttributeがFoldと同じ集約結果を返すことを検証する。
func TestEngine_Attribute_MatchesFold(t *testing.T) {
	events := []model.StatusEvent{
		{FeedURL: "b", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(1)},
		{FeedURL: "a", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(0)},
		{FeedURL: "b", Status: model.FeedStatusReadingError, Date: day(1)},
		{FeedURL: "a", Status: model.FeedStatusReadingError, Date: day(0)},
		{FeedURL: "b", Status: model.FeedStatusReadingErrorDuringAttempt, Date: day(4)},
	}

	got, err := newEngine(t, 24).Attribute(context.Background(), &sliceSource{events: events}, day(30))
	if err != nil {
		t.Fatalf("Attribute returned error: %v", err)
	}
	want := Fold(events)
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !reflect.DeepEqual(got[i].Aggregate, want[i]) {
			t.Errorf("Aggregate[%d] = %+v, want %+v", i, got[i].Aggregate, want[i])
		}
	}
}
