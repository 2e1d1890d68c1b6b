package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/feedaudit/internal/model"
	"github.com/hitoshi/feedaudit/internal/publish"
	"github.com/hitoshi/feedaudit/internal/report"
	"github.com/hitoshi/feedaudit/internal/table"
)

// OwnershipSource はオーナー情報ファイルの場所と結合キー。
type OwnershipSource struct {
	Path  string
	Sheet string
	// MainColumn はエラーレポート側の結合キー。空または Feed_URL のみ受け付ける。
	MainColumn string
	// CustomerColumn はオーナー情報ファイル側でフィードURLを持つカラム。
	CustomerColumn string
}

// Load はオーナー情報をCustomerColumnの値ごとのグループとして読み込む。
// グループはエラーレポート行のフィードURLと照合される。
func (o OwnershipSource) Load() ([]model.OwnershipGroup, error) {
	if o.MainColumn != "" && o.MainColumn != report.ColumnFeedURL {
		return nil, model.NewSchemaViolationError(o.MainColumn, report.SheetErrorFeeds)
	}
	t, err := table.Read(o.Path, o.Sheet)
	if err != nil {
		return nil, err
	}
	return report.LoadOwnership(t, o.Path, o.CustomerColumn)
}

// ReportWriter は実行結果をファイルに書き出し、公開する。
type ReportWriter struct {
	dir       string
	ownership *OwnershipSource
	publisher publish.Publisher
	logger    *slog.Logger
}

// NewReportWriter はReportWriterを生成する。ownershipがnilの場合は結合済みレポートを作らない。
func NewReportWriter(dir string, ownership *OwnershipSource, publisher publish.Publisher, logger *slog.Logger) *ReportWriter {
	if publisher == nil {
		publisher = publish.Noop{}
	}
	return &ReportWriter{dir: dir, ownership: ownership, publisher: publisher, logger: logger}
}

// Write はエラーレポートを書き出し、オーナー情報が設定されていれば結合済みレポートも書き出す。
// 書き出したファイルのパスを返す。
func (w *ReportWriter) Write(ctx context.Context, res *Result) ([]string, error) {
	logger := w.logger.With(slog.String("run_id", res.RunID))

	errorTable := report.BuildErrorTable(res.Rows)
	errorPath := report.ErrorReportPath(w.dir, res.ThresholdDays, res.GeneratedAt)
	if err := table.Write(errorPath, report.SheetErrorFeeds, errorTable); err != nil {
		return nil, err
	}
	logger.Info("エラーレポートを作成しました",
		slog.String("path", errorPath),
		slog.Int("rows", errorTable.Len()),
	)
	paths := []string{errorPath}

	if w.ownership != nil {
		finalPath := report.FinalReportPath(w.dir, res.GeneratedAt)
		rows, err := JoinFiles(JoinRequest{
			MainPath:       errorPath,
			MainSheet:      report.SheetErrorFeeds,
			MainColumn:     w.ownership.MainColumn,
			CustomerPath:   w.ownership.Path,
			CustomerSheet:  w.ownership.Sheet,
			CustomerColumn: w.ownership.CustomerColumn,
			OutPath:        finalPath,
		})
		if err != nil {
			return paths, err
		}
		logger.Info("結合済みレポートを作成しました",
			slog.String("path", finalPath),
			slog.Int("rows", rows),
		)
		paths = append(paths, finalPath)
	}

	for _, p := range paths {
		if _, err := w.publisher.Publish(ctx, p); err != nil {
			logger.Error("レポートの公開に失敗しました",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			return paths, err
		}
	}
	return paths, nil
}

// JoinRequest は2つのファイルの結合要求。
type JoinRequest struct {
	MainPath       string
	MainSheet      string
	MainColumn     string
	CustomerPath   string
	CustomerSheet  string
	CustomerColumn string
	OutPath        string
}

// JoinFiles はメインファイルとオーナー情報ファイルを内部結合して書き出し、出力行数を返す。
// オーナー情報がグループ化前の形式の場合は、CustomerColumnでグループ化してから結合する。
func JoinFiles(req JoinRequest) (int, error) {
	main, err := table.Read(req.MainPath, req.MainSheet)
	if err != nil {
		return 0, err
	}
	customer, err := table.Read(req.CustomerPath, req.CustomerSheet)
	if err != nil {
		return 0, err
	}
	if !customer.Has(report.ColumnOwnerPlatformList) && customer.Has(report.ColumnOwnerID) {
		customer, err = report.OwnershipTable(customer, req.CustomerPath, req.CustomerColumn)
		if err != nil {
			return 0, err
		}
	}

	joined, err := report.Join(
		report.Source{Name: req.MainPath, Table: main, Key: req.MainColumn},
		report.Source{Name: req.CustomerPath, Table: customer, Key: req.CustomerColumn},
	)
	if err != nil {
		return 0, err
	}

	if err := table.Write(req.OutPath, report.SheetFinalReport, joined); err != nil {
		return 0, err
	}
	return joined.Len(), nil
}

// GroupFile はオーナー情報ファイルをフィードURLでグループ化して書き出し、グループ数を返す。
func GroupFile(inPath, sheet, outPath string) (int, error) {
	t, err := table.Read(inPath, sheet)
	if err != nil {
		return 0, err
	}
	groups, err := report.GroupByFeedURL(t, inPath)
	if err != nil {
		return 0, err
	}
	out, err := report.GroupTable(groups)
	if err != nil {
		return 0, err
	}
	if err := table.Write(outPath, "", out); err != nil {
		return 0, fmt.Errorf("グループ化結果の書き込みに失敗しました: %w", err)
	}
	return len(groups), nil
}

// Reporter は監査の実行とレポートファイルの書き出しをまとめる。
type Reporter struct {
	service *Service
	writer  *ReportWriter
}

// NewReporter はReporterを生成する。
func NewReporter(service *Service, writer *ReportWriter) *Reporter {
	return &Reporter{service: service, writer: writer}
}

// Report は監査を1回実行し、レポートを書き出したファイルのパスを返す。
func (r *Reporter) Report(ctx context.Context, thresholdDays int) ([]string, error) {
	res, err := r.service.Run(ctx, thresholdDays)
	if err != nil {
		return nil, err
	}
	return r.writer.Write(ctx, res)
}
