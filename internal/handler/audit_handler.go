package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/feedaudit/internal/audit"
	"github.com/hitoshi/feedaudit/internal/middleware"
	"github.com/hitoshi/feedaudit/internal/model"
	"github.com/hitoshi/feedaudit/internal/report"
)

// AuditRunner は監査の実行インターフェース。audit.Serviceが実装する。
type AuditRunner interface {
	Run(ctx context.Context, thresholdDays int) (*audit.Result, error)
}

// OwnershipLoader はオーナー情報を読み込む関数。
type OwnershipLoader func() ([]model.OwnershipGroup, error)

// AuditHandler は継続エラーフィード一覧のHTTPハンドラー。
type AuditHandler struct {
	runner        AuditRunner
	ownership     OwnershipLoader
	thresholdDays int
	logger        *slog.Logger
}

// NewAuditHandler はAuditHandlerを生成する。
// ownershipがnilの場合はオーナー情報を付与せずに全件返す。
func NewAuditHandler(runner AuditRunner, ownership OwnershipLoader, thresholdDays int, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		runner:        runner,
		ownership:     ownership,
		thresholdDays: thresholdDays,
		logger:        logger,
	}
}

// feedErrorsResponse は継続エラーフィード一覧のAPIレスポンス。
type feedErrorsResponse struct {
	RunID         string                  `json:"run_id"`
	GeneratedAt   time.Time               `json:"generated_at"`
	ThresholdDays int                     `json:"threshold_days"`
	Feeds         []model.JoinedReportRow `json:"feeds"`
}

// ListFeedErrors は監査を実行し、継続エラーフィードの一覧を返す。
// GET /api/feed-errors?threshold_days=N
func (h *AuditHandler) ListFeedErrors(w http.ResponseWriter, r *http.Request) {
	days := h.thresholdDays
	if raw := r.URL.Query().Get("threshold_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidThresholdError(raw))
			return
		}
		days = n
	}

	res, err := h.runner.Run(r.Context(), days)
	if err != nil {
		h.handleError(w, err)
		return
	}

	feeds, err := h.attachOwnership(res.Rows)
	if err != nil {
		h.handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(middleware.HeaderRunID, res.RunID)
	json.NewEncoder(w).Encode(feedErrorsResponse{
		RunID:         res.RunID,
		GeneratedAt:   res.GeneratedAt.UTC(),
		ThresholdDays: res.ThresholdDays,
		Feeds:         feeds,
	})
}

func (h *AuditHandler) attachOwnership(rows []model.ErrorReportRow) ([]model.JoinedReportRow, error) {
	if h.ownership == nil {
		out := make([]model.JoinedReportRow, 0, len(rows))
		for _, r := range rows {
			out = append(out, model.JoinedReportRow{ErrorReportRow: r, OwnerPlatformList: []model.OwnershipTuple{}})
		}
		return out, nil
	}
	groups, err := h.ownership()
	if err != nil {
		return nil, err
	}
	return report.JoinOwnership(rows, groups), nil
}

// handleError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (h *AuditHandler) handleError(w http.ResponseWriter, err error) {
	var auditErr *model.AuditError
	if errors.As(err, &auditErr) {
		status := middleware.StatusForError(auditErr)
		if status >= http.StatusInternalServerError {
			h.logger.Error("監査APIの実行に失敗しました",
				slog.String("code", auditErr.Code),
				slog.String("error", err.Error()),
			)
		}
		middleware.WriteErrorResponse(w, status, auditErr)
		return
	}

	h.logger.Error("監査APIの実行に失敗しました", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
