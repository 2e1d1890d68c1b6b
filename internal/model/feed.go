// Package model はドメインモデルを定義する。
package model

import "time"

// FeedStatus はフィードステータスログに記録される状態ラベルを表す。
type FeedStatus string

const (
	// FeedStatusIdle はフィードの読み込みが成功した（復旧した）ことを示す。
	FeedStatusIdle FeedStatus = "IDLE"
	// FeedStatusReadingError は読み込み試行が最終的に失敗したことを示す。
	FeedStatusReadingError FeedStatus = "READING_ERROR"
	// FeedStatusReadingErrorDuringAttempt は読み込み試行中の失敗を示す。
	// エラーエピソードの開始時刻の特定に使用する。
	FeedStatusReadingErrorDuringAttempt FeedStatus = "READING_ERROR_DURING_ATTEMPT"
)

// StatusEvent はフィードごとのステータスイベントを表す。
// 追記のみで、作成後に変更されない。
type StatusEvent struct {
	FeedURL string
	Status  FeedStatus
	Date    time.Time
}

// FeedAggregate は1フィード分のステータスイベントを集約した結果。
type FeedAggregate struct {
	FeedURL                  string
	TotalEvents              int
	ErrorCount               int        // READING_ERROR の件数
	EarliestAttemptErrorDate *time.Time // READING_ERROR_DURING_ATTEMPT の最小日時
	LatestIdleDate           *time.Time // IDLE の最大日時
	AttemptErrorDates        []time.Time
	// ErrorStartDate は現在のエラーエピソードの開始日時。
	// ErrorCount > 0 の場合のみ定義される。
	ErrorStartDate *time.Time
}

// RegistryStatus はフィード登録情報の利用可否ステータス。
type RegistryStatus string

// RegistryStatusNotAvailable は利用不可として登録されたフィードを示す。
const RegistryStatusNotAvailable RegistryStatus = "NOT_AVAILABLE"

// RegistryRecord はフィード登録情報（feedsコレクション/テーブル）の1件を表す。
type RegistryRecord struct {
	FeedURL string
	Status  RegistryStatus
}

// IsAvailable はレポート対象として扱えるフィードかを返す。
func (r *RegistryRecord) IsAvailable() bool {
	return r != nil && r.Status != RegistryStatusNotAvailable
}
