package report

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/feedaudit/internal/model"
)

// TestBuildErrorTable は固定ヘッダーと入力順の行が出力されることを検証する。
func TestBuildErrorTable(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	rows := []model.ErrorReportRow{
		{FeedURL: "https://b.example/feed", ErrorStartDate: time.Date(2025, 3, 2, 18, 30, 0, 0, jst), DaysSinceStart: 29, ErrorType: "ERROR_404"},
		{FeedURL: "https://a.example/feed", ErrorStartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), DaysSinceStart: 89, ErrorType: "HTML_FORMAT"},
	}

	tb := BuildErrorTable(rows)

	if !reflect.DeepEqual(tb.Columns, []string{"Feed_URL", "Error_Start_Date", "Days_Since_Error_Start", "Error_type"}) {
		t.Errorf("Columns = %v", tb.Columns)
	}
	want := [][]string{
		{"https://b.example/feed", "2025-03-02T09:30:00Z", "29", "ERROR_404"},
		{"https://a.example/feed", "2025-01-01T00:00:00Z", "89", "HTML_FORMAT"},
	}
	if !reflect.DeepEqual(tb.Rows, want) {
		t.Errorf("Rows = %v, want %v", tb.Rows, want)
	}
}

// TestBuildErrorTable_Empty は行がない場合もヘッダーを持つことを検証する。
func TestBuildErrorTable_Empty(t *testing.T) {
	tb := BuildErrorTable(nil)
	if len(tb.Columns) != 4 || tb.Len() != 0 {
		t.Errorf("got %+v, want header only", tb)
	}
}

// TestFileNames はレポートのファイル名規則を検証する。
func TestFileNames(t *testing.T) {
	now := time.Date(2025, 4, 1, 23, 59, 0, 0, time.UTC)

	if got := ErrorReportFileName(24, now); got != "24Days_20250401.xlsx" {
		t.Errorf("ErrorReportFileName = %q", got)
	}
	if got := FinalReportFileName(now); got != "20250401final_report.xlsx" {
		t.Errorf("FinalReportFileName = %q", got)
	}
	if got := ErrorReportPath("out", 7, now); got != filepath.Join("out", "7Days_20250401.xlsx") {
		t.Errorf("ErrorReportPath = %q", got)
	}
	if got := FinalReportPath("out", now); got != filepath.Join("out", "20250401final_report.xlsx") {
		t.Errorf("FinalReportPath = %q", got)
	}
}
