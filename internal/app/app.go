// Package app はコマンドライン引数に応じて各モードを組み立てて起動する。
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedaudit/internal/audit"
	"github.com/hitoshi/feedaudit/internal/config"
	"github.com/hitoshi/feedaudit/internal/database"
	"github.com/hitoshi/feedaudit/internal/handler"
	"github.com/hitoshi/feedaudit/internal/logger"
	"github.com/hitoshi/feedaudit/internal/metrics"
	"github.com/hitoshi/feedaudit/internal/middleware"
	"github.com/hitoshi/feedaudit/internal/worker/schedule"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)
	rest := commandArgs(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("event_source", cfg.EventSource),
	)

	switch cmd {
	case CommandJoin:
		return runJoin(cfg, rest)
	case CommandGroup:
		return runGroup(rest)
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runReport(cfg, rest)
	}
}

// runReport は監査を1回実行し、レポートを書き出す。
// -days でしきい値日数を上書きできる。
func runReport(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	days := fs.Int("days", cfg.ErrorThresholdDays, "エラー継続日数のしきい値")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.ValidateSource(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()
	publisher, closePublisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	svc := newService(cfg, perRunOpener(cfg, log), metrics.Noop{}, log)
	reporter := audit.NewReporter(svc, newReportWriter(cfg, publisher, log))

	paths, err := reporter.Report(ctx, *days)
	if err != nil {
		log.Error("レポート作成に失敗しました", slog.String("error", err.Error()))
		return err
	}

	log.Info("レポート作成が完了しました", slog.Any("files", paths))
	return nil
}

// runJoin はエラーレポートとオーナー情報ファイルを結合して書き出す。
func runJoin(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	req := audit.JoinRequest{}
	fs.StringVar(&req.MainPath, "main", "", "メインファイル（エラーレポート）")
	fs.StringVar(&req.MainSheet, "main-sheet", "", "メインファイルのシート名")
	fs.StringVar(&req.MainColumn, "main-col", cfg.MainJoinColumn, "メインファイルの結合キー")
	fs.StringVar(&req.CustomerPath, "customer", cfg.OwnershipFile, "オーナー情報ファイル")
	fs.StringVar(&req.CustomerSheet, "customer-sheet", cfg.OwnershipSheet, "オーナー情報ファイルのシート名")
	fs.StringVar(&req.CustomerColumn, "customer-col", cfg.CustomerJoinColumn, "オーナー情報ファイルの結合キー")
	fs.StringVar(&req.OutPath, "out", "", "出力ファイル")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.MainPath == "" || req.CustomerPath == "" || req.OutPath == "" {
		return errors.New("join requires -main, -customer and -out")
	}

	rows, err := audit.JoinFiles(req)
	if err != nil {
		slog.Error("ファイルの結合に失敗しました", slog.String("error", err.Error()))
		return err
	}

	slog.Info("ファイルを結合しました",
		slog.String("out", req.OutPath),
		slog.Int("rows", rows),
	)
	return nil
}

// runGroup はオーナー情報ファイルをフィードURLでグループ化して書き出す。
func runGroup(args []string) error {
	fs := flag.NewFlagSet("group", flag.ContinueOnError)
	in := fs.String("in", "", "オーナー情報ファイル")
	sheet := fs.String("sheet", "", "シート名（省略時は先頭のシート）")
	out := fs.String("out", "Group_feed_url.xlsx", "出力ファイル")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("group requires -in")
	}

	groups, err := audit.GroupFile(*in, *sheet, *out)
	if err != nil {
		slog.Error("グループ化に失敗しました", slog.String("error", err.Error()))
		return err
	}

	slog.Info("フィードURLでグループ化しました",
		slog.String("out", *out),
		slog.Int("groups", groups),
	)
	return nil
}

// runServe はAPIサーバーモードで起動する。
// イベントログソースに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	if err := cfg.ValidateSource(); err != nil {
		return err
	}
	log := slog.Default()

	// 1. イベントログソースへの接続
	src, err := database.OpenSource(context.Background(), sourceOptions(cfg), log)
	if err != nil {
		return fmt.Errorf("failed to open event source: %w", err)
	}
	defer closeSource(src, log)

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 3. 監査サービス
	svc := newService(cfg, sharedOpener(src), collector, log)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral), log)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:        log,
		HealthChecker: src,
		Gatherer:      reg,
		RateLimiter:   rateLimiter,
		Runner:        svc,
		Ownership:     ownershipLoader(cfg),
		ThresholdDays: cfg.ErrorThresholdDays,
	}
	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	// 監査APIはURL確認を順に行うため書き込みタイムアウトを長めに取る
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	log.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// REPORT_INTERVALごとにレポートを作成する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if err := cfg.ValidateSource(); err != nil {
		return err
	}
	log := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		log.Info("shutting down worker...")
		cancel()
	}()

	publisher, closePublisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	svc := newService(cfg, perRunOpener(cfg, log), metrics.Noop{}, log)
	reporter := audit.NewReporter(svc, newReportWriter(cfg, publisher, log))

	log.Info("worker starting",
		slog.Duration("report_interval", cfg.ReportInterval),
		slog.Int("threshold_days", cfg.ErrorThresholdDays),
	)

	scheduler := schedule.NewScheduler(reporter, cfg.ErrorThresholdDays, log)
	scheduler.Start(ctx, cfg.ReportInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("required environment variables are not set: [DATABASE_URL]")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
