package app

import (
	"context"
	"log/slog"

	"github.com/hitoshi/feedaudit/internal/audit"
	"github.com/hitoshi/feedaudit/internal/config"
	"github.com/hitoshi/feedaudit/internal/database"
	"github.com/hitoshi/feedaudit/internal/handler"
	"github.com/hitoshi/feedaudit/internal/metrics"
	"github.com/hitoshi/feedaudit/internal/probe"
	"github.com/hitoshi/feedaudit/internal/publish"
	"github.com/hitoshi/feedaudit/internal/security"
)

func sourceOptions(cfg *config.Config) database.SourceOptions {
	attempts := cfg.SourceConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	return database.SourceOptions{
		Kind:            cfg.EventSource,
		DatabaseURL:     cfg.DatabaseURL,
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		ConnectAttempts: uint(attempts),
	}
}

// perRunOpener は実行ごとに接続を開き、実行の終了時に閉じるOpenerを返す。
func perRunOpener(cfg *config.Config, log *slog.Logger) audit.Opener {
	opts := sourceOptions(cfg)
	return func(ctx context.Context) (*audit.Session, error) {
		src, err := database.OpenSource(ctx, opts, log)
		if err != nil {
			return nil, err
		}
		return &audit.Session{
			Events:   src.StatusLog,
			Registry: src.Registry,
			Close:    src.Close,
		}, nil
	}
}

// sharedOpener は起動時に開いた接続を使い回すOpenerを返す。
// 接続はサーバーの停止時に閉じる。
func sharedOpener(src *database.Source) audit.Opener {
	return func(context.Context) (*audit.Session, error) {
		return &audit.Session{
			Events:   src.StatusLog,
			Registry: src.Registry,
		}, nil
	}
}

func closeSource(src *database.Source, log *slog.Logger) {
	if err := src.Close(context.Background()); err != nil {
		log.Warn("イベントログソースのクローズに失敗しました", slog.String("error", err.Error()))
	}
}

func newClassifier(cfg *config.Config, log *slog.Logger) *probe.Classifier {
	opts := probe.Options{
		Timeout:        cfg.ProbeTimeout,
		UserAgent:      cfg.ProbeUserAgent,
		TrackRedirects: cfg.ProbeTrackRedirects,
		InspectBody:    cfg.ProbeInspectBody,
		MaxBodySize:    cfg.ProbeMaxBodySize,
	}
	if cfg.ProbeSSRFGuard {
		opts.Guard = security.NewGuard()
	}
	return probe.NewClassifier(opts, log)
}

func newService(cfg *config.Config, open audit.Opener, mc metrics.MetricsCollector, log *slog.Logger) *audit.Service {
	return audit.NewService(open, newClassifier(cfg, log), mc, log,
		audit.WithProbeInterval(cfg.ProbeInterval),
	)
}

func ownershipSource(cfg *config.Config) *audit.OwnershipSource {
	if cfg.OwnershipFile == "" {
		return nil
	}
	return &audit.OwnershipSource{
		Path:           cfg.OwnershipFile,
		Sheet:          cfg.OwnershipSheet,
		MainColumn:     cfg.MainJoinColumn,
		CustomerColumn: cfg.CustomerJoinColumn,
	}
}

func ownershipLoader(cfg *config.Config) handler.OwnershipLoader {
	src := ownershipSource(cfg)
	if src == nil {
		return nil
	}
	return src.Load
}

func newReportWriter(cfg *config.Config, publisher publish.Publisher, log *slog.Logger) *audit.ReportWriter {
	return audit.NewReportWriter(cfg.ReportDir, ownershipSource(cfg), publisher, log)
}

// newPublisher はREPORT_BUCKETが設定されていればCloud Storageへのpublisherを、
// そうでなければ何もしないpublisherを返す。
func newPublisher(ctx context.Context, cfg *config.Config, log *slog.Logger) (publish.Publisher, func(), error) {
	if cfg.ReportBucket == "" {
		return publish.Noop{}, func() {}, nil
	}
	p, closeFn, err := publish.NewGCS(ctx, cfg.ReportBucket, cfg.ReportPrefix, log)
	if err != nil {
		return nil, nil, err
	}
	return p, func() {
		if err := closeFn(); err != nil {
			log.Warn("ストレージクライアントのクローズに失敗しました", slog.String("error", err.Error()))
		}
	}, nil
}
