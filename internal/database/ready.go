package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// WaitReady は接続先がPingに応答するまで再試行する。
// フィードへのプローブではなく、イベントログソースへの接続確立にのみ使用する。
// attemptsが0の場合は1回だけ試行する。
func WaitReady(ctx context.Context, name string, ping func(ctx context.Context) error, attempts uint, logger *slog.Logger) error {
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	err := retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			lastErr = ping(pingCtx)
			return lastErr
		},
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("接続確認に失敗したため再試行します",
				slog.String("source", name),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return fmt.Errorf("%s is not reachable: %w", name, lastErr)
	}
	return nil
}
