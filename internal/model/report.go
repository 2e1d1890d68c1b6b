package model

import "time"

// ErrorReportRow はエラーレポートの1行を表す。
type ErrorReportRow struct {
	FeedURL        string    `json:"feed_url"`
	ErrorStartDate time.Time `json:"error_start_date"`
	DaysSinceStart int       `json:"days_since_start"`
	ErrorType      string    `json:"error_type"`
}

// OwnershipTuple はフィードと顧客（オーナー/プラットフォーム）の関係を表す。
// 1つのフィードURLに複数のタプルが対応する。
type OwnershipTuple struct {
	FeedRecordID string `json:"feed_id"`
	OwnerID      string `json:"owner_id"`
	PlatformID   string `json:"platform_id"`
	PlatformName string `json:"platform_name"`
}

// OwnershipGroup はフィードURL単位にまとめたオーナー情報。
type OwnershipGroup struct {
	FeedURL string
	Tuples  []OwnershipTuple
}

// JoinedReportRow はエラーレポート行にオーナー情報を結合した行。
type JoinedReportRow struct {
	ErrorReportRow
	OwnerPlatformList []OwnershipTuple `json:"owner_platform_list"`
}
