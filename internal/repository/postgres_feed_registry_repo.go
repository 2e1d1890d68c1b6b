package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feedaudit/internal/model"
)

// PostgresFeedRegistryRepo はPostgreSQLを使用したフィード登録情報リポジトリ。
type PostgresFeedRegistryRepo struct {
	db *sql.DB
}

// NewPostgresFeedRegistryRepo はPostgresFeedRegistryRepoを生成する。
func NewPostgresFeedRegistryRepo(db *sql.DB) *PostgresFeedRegistryRepo {
	return &PostgresFeedRegistryRepo{db: db}
}

// FindByFeedURL はフィードURLで登録情報を検索する。見つからない場合はnilを返す。
func (r *PostgresFeedRegistryRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.RegistryRecord, error) {
	rec := &model.RegistryRecord{}
	var status sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT feed_url, status FROM feeds WHERE feed_url = $1 LIMIT 1`,
		feedURL,
	).Scan(&rec.FeedURL, &status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィード登録情報の取得に失敗しました: %w", err)
	}

	rec.Status = model.RegistryStatus(nullStringValue(status))
	return rec, nil
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ FeedRegistryRepository = (*PostgresFeedRegistryRepo)(nil)
