package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feedaudit/internal/model"
)

// PostgresStatusLogRepo はPostgreSQLを使用したステータスログリポジトリ。
type PostgresStatusLogRepo struct {
	db *sql.DB
}

// NewPostgresStatusLogRepo はPostgresStatusLogRepoを生成する。
func NewPostgresStatusLogRepo(db *sql.DB) *PostgresStatusLogRepo {
	return &PostgresStatusLogRepo{db: db}
}

// ForEachEvent は全イベントをfeed_url、event_dateの昇順で走査する。
// 行はカーソルで逐次読み取り、全件をメモリに展開しない。
func (r *PostgresStatusLogRepo) ForEachEvent(ctx context.Context, fn func(model.StatusEvent) error) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT feed_url, status, event_date
		 FROM feed_status_log
		 ORDER BY feed_url ASC, event_date ASC`,
	)
	if err != nil {
		return fmt.Errorf("ステータスログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev model.StatusEvent
		var status string
		if err := rows.Scan(&ev.FeedURL, &status, &ev.Date); err != nil {
			return fmt.Errorf("ステータスログの読み取りに失敗しました: %w", err)
		}
		ev.Status = model.FeedStatus(status)

		if err := fn(ev); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("ステータスログの走査に失敗しました: %w", err)
	}
	return nil
}

// Append はステータスイベントを1件追記する。
func (r *PostgresStatusLogRepo) Append(ctx context.Context, ev model.StatusEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_status_log (feed_url, status, event_date) VALUES ($1, $2, $3)`,
		ev.FeedURL, string(ev.Status), ev.Date,
	)
	if err != nil {
		return fmt.Errorf("ステータスログの追記に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StatusLogRepository = (*PostgresStatusLogRepo)(nil)
