// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/feedaudit/internal/model"
)

// StatusLogRepository はフィードステータスログの読み取りインターフェース。
type StatusLogRepository interface {
	// ForEachEvent は全イベントをフィードURL、日時の昇順で走査し、1件ごとにfnを呼び出す。
	// fnがエラーを返した場合は走査を中断してそのエラーを返す。
	ForEachEvent(ctx context.Context, fn func(model.StatusEvent) error) error
}

// FeedRegistryRepository はフィード登録情報の読み取りインターフェース。
type FeedRegistryRepository interface {
	// FindByFeedURL はフィードURLで登録情報を検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.RegistryRecord, error)
}
