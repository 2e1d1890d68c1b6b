package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedaudit/internal/audit"
	"github.com/hitoshi/feedaudit/internal/metrics"
	"github.com/hitoshi/feedaudit/internal/middleware"
	"github.com/hitoshi/feedaudit/internal/model"
)

// --- モック定義 ---

// mockRunner はAuditRunnerのテスト用モック。
type mockRunner struct {
	runFunc func(ctx context.Context, days int) (*audit.Result, error)
	days    []int
}

func (m *mockRunner) Run(ctx context.Context, days int) (*audit.Result, error) {
	m.days = append(m.days, days)
	if m.runFunc != nil {
		return m.runFunc(ctx, days)
	}
	return &audit.Result{
		RunID:         "run-1",
		GeneratedAt:   time.Date(2024, 3, 30, 9, 0, 0, 0, time.UTC),
		ThresholdDays: days,
		Rows: []model.ErrorReportRow{
			{
				FeedURL:        "https://a.example/feed",
				ErrorStartDate: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
				DaysSinceStart: 29,
				ErrorType:      "CONNECTION_ERROR",
			},
			{
				FeedURL:        "https://b.example/feed",
				ErrorStartDate: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
				DaysSinceStart: 28,
				ErrorType:      "HTML_FORMAT",
			},
		},
	}, nil
}

// mockChecker はHealthCheckerのテスト用モック。
type mockChecker struct {
	err error
}

func (m *mockChecker) Ping(context.Context) error { return m.err }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestRouter(t *testing.T, deps *RouterDeps) (http.Handler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	deps.Logger = newTestLogger(&buf)
	if deps.ThresholdDays == 0 {
		deps.ThresholdDays = 24
	}
	return NewRouter(deps), &buf
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- /health ---

func TestHealth_OK(t *testing.T) {
	h, _ := newTestRouter(t, &RouterDeps{HealthChecker: &mockChecker{}, Runner: &mockRunner{}})

	w := get(h, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestHealth_SourceUnavailable(t *testing.T) {
	h, _ := newTestRouter(t, &RouterDeps{
		HealthChecker: &mockChecker{err: errors.New("connection refused")},
		Runner:        &mockRunner{},
	})

	w := get(h, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeSourceUnavailable {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeSourceUnavailable)
	}
}

// --- /metrics ---

func TestMetrics_ExposesCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.RecordRun("success", time.Second)

	h, _ := newTestRouter(t, &RouterDeps{Gatherer: reg, Runner: &mockRunner{}})

	w := get(h, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "feedaudit_runs_total") {
		t.Errorf("metrics output should contain feedaudit_runs_total:\n%s", w.Body.String())
	}
}

// --- /api/feed-errors ---

func TestListFeedErrors_DefaultThreshold(t *testing.T) {
	runner := &mockRunner{}
	h, _ := newTestRouter(t, &RouterDeps{Runner: runner})

	w := get(h, "/api/feed-errors")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if len(runner.days) != 1 || runner.days[0] != 24 {
		t.Errorf("days = %v, want [24]", runner.days)
	}

	var body feedErrorsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.RunID != "run-1" || body.ThresholdDays != 24 {
		t.Errorf("body = %+v", body)
	}
	if got := w.Header().Get(middleware.HeaderRunID); got != "run-1" {
		t.Errorf("X-Run-ID = %q, want run-1", got)
	}
	// オーナー情報がない場合は全件を空のリスト付きで返す
	if len(body.Feeds) != 2 {
		t.Fatalf("feeds = %d, want 2", len(body.Feeds))
	}
	if body.Feeds[0].FeedURL != "https://a.example/feed" || body.Feeds[0].DaysSinceStart != 29 {
		t.Errorf("feeds[0] = %+v", body.Feeds[0])
	}
	if body.Feeds[0].OwnerPlatformList == nil {
		t.Error("owner_platform_list should be an empty list")
	}
}

func TestListFeedErrors_WithOwnership(t *testing.T) {
	loader := func() ([]model.OwnershipGroup, error) {
		return []model.OwnershipGroup{{
			FeedURL: "https://a.example/feed",
			Tuples: []model.OwnershipTuple{
				{FeedRecordID: "1", OwnerID: "owner-1", PlatformID: "p-1", PlatformName: "One"},
			},
		}}, nil
	}
	h, _ := newTestRouter(t, &RouterDeps{Runner: &mockRunner{}, Ownership: loader})

	w := get(h, "/api/feed-errors?threshold_days=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["threshold_days"] != float64(10) {
		t.Errorf("threshold_days = %v, want 10", raw["threshold_days"])
	}
	feeds := raw["feeds"].([]interface{})
	if len(feeds) != 1 {
		t.Fatalf("feeds = %d, want 1", len(feeds))
	}
	feed := feeds[0].(map[string]interface{})
	for _, key := range []string{"feed_url", "error_start_date", "days_since_start", "error_type", "owner_platform_list"} {
		if _, ok := feed[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
}

func TestListFeedErrors_InvalidThreshold(t *testing.T) {
	for _, q := range []string{"abc", "-1", "1.5"} {
		t.Run(q, func(t *testing.T) {
			runner := &mockRunner{}
			h, _ := newTestRouter(t, &RouterDeps{Runner: runner})

			w := get(h, "/api/feed-errors?threshold_days="+q)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != model.ErrCodeInvalidThreshold {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidThreshold)
			}
			if len(runner.days) != 0 {
				t.Error("runner should not be called")
			}
		})
	}
}

func TestListFeedErrors_SourceUnavailable(t *testing.T) {
	runner := &mockRunner{runFunc: func(context.Context, int) (*audit.Result, error) {
		return nil, model.NewSourceUnavailableError("connection refused")
	}}
	h, logs := newTestRouter(t, &RouterDeps{Runner: runner})

	w := get(h, "/api/feed-errors")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(logs.String(), "監査APIの実行に失敗しました") {
		t.Errorf("failure should be logged: %s", logs.String())
	}
}

func TestListFeedErrors_UnexpectedError(t *testing.T) {
	runner := &mockRunner{runFunc: func(context.Context, int) (*audit.Result, error) {
		return nil, errors.New("boom")
	}}
	h, _ := newTestRouter(t, &RouterDeps{Runner: runner})

	w := get(h, "/api/feed-errors")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("internal error details should not be exposed")
	}
}

func TestListFeedErrors_RateLimited(t *testing.T) {
	var buf bytes.Buffer
	rl := middleware.NewRateLimiter(middleware.PerMinuteConfig(1), newTestLogger(&buf))
	defer rl.Stop()
	h, _ := newTestRouter(t, &RouterDeps{Runner: &mockRunner{}, RateLimiter: rl})

	if w := get(h, "/api/feed-errors"); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}
	if w := get(h, "/api/feed-errors"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w.Code)
	}
	// /health はレート制限の対象外
	if w := get(h, "/health"); w.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", w.Code)
	}
}
