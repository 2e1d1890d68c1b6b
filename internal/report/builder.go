// Package report はエラーレポートの組み立て、オーナー情報のグループ化と結合を提供する。
package report

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hitoshi/feedaudit/internal/model"
	"github.com/hitoshi/feedaudit/internal/table"
)

// エラーレポートのヘッダー
const (
	ColumnFeedURL        = "Feed_URL"
	ColumnErrorStartDate = "Error_Start_Date"
	ColumnDaysSinceStart = "Days_Since_Error_Start"
	ColumnErrorType      = "Error_type"
)

// SheetErrorFeeds はエラーレポートのシート名。
const SheetErrorFeeds = "Error_Feeds"

// SheetFinalReport は結合済みレポートのシート名。
const SheetFinalReport = "Final_Report"

// ErrorReportColumns はエラーレポートの固定ヘッダー。
var ErrorReportColumns = []string{
	ColumnFeedURL,
	ColumnErrorStartDate,
	ColumnDaysSinceStart,
	ColumnErrorType,
}

// BuildErrorTable はレポート行を固定ヘッダー付きのTableに変換する。
// 行の順序は入力順のまま。日時はUTCのRFC 3339形式で出力する。
func BuildErrorTable(rows []model.ErrorReportRow) *table.Table {
	t := table.New(ErrorReportColumns...)
	for _, r := range rows {
		t.Append(
			r.FeedURL,
			r.ErrorStartDate.UTC().Format(time.RFC3339),
			strconv.Itoa(r.DaysSinceStart),
			r.ErrorType,
		)
	}
	return t
}

// ErrorReportFileName はエラーレポートのファイル名 <days>Days_<YYYYMMDD>.xlsx を返す。
func ErrorReportFileName(thresholdDays int, now time.Time) string {
	return fmt.Sprintf("%dDays_%s.xlsx", thresholdDays, now.Format("20060102"))
}

// FinalReportFileName は結合済みレポートのファイル名 <YYYYMMDD>final_report.xlsx を返す。
func FinalReportFileName(now time.Time) string {
	return now.Format("20060102") + "final_report.xlsx"
}

// ErrorReportPath はdir配下のエラーレポートのパスを返す。
func ErrorReportPath(dir string, thresholdDays int, now time.Time) string {
	return filepath.Join(dir, ErrorReportFileName(thresholdDays, now))
}

// FinalReportPath はdir配下の結合済みレポートのパスを返す。
func FinalReportPath(dir string, now time.Time) string {
	return filepath.Join(dir, FinalReportFileName(now))
}
