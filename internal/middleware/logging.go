package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// HeaderRunID は監査実行のrun_idを返すレスポンスヘッダー。
// リクエストログとパイプラインのログを突き合わせるために使う。
const HeaderRunID = "X-Run-ID"

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードと応答サイズを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// NewLoggingMiddleware はリクエストごとにJSON構造化ログを1行出力するミドルウェアを返す。
//
// 出力するフィールド:
//   - method, path, status, duration_ms, bytes
//   - request_id: RequestIDミドルウェアの後に配置した場合
//   - query: threshold_days など監査条件の指定がある場合
//   - run_id: ハンドラーが X-Run-ID を返した場合（同じrun_idで監査ログを検索できる）
//
// 監査は逐次のURL確認を含み数分かかることがあるため、duration_ms で実行時間を追える。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
				slog.Int("bytes", rec.bytes),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}
			if q := r.URL.RawQuery; q != "" {
				args = append(args, slog.String("query", q))
			}
			if runID := rec.Header().Get(HeaderRunID); runID != "" {
				args = append(args, slog.String("run_id", runID))
			}

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= 500:
				level = slog.LevelError
			case rec.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
