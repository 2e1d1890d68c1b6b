package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hitoshi/feedaudit/internal/model"
	"github.com/hitoshi/feedaudit/internal/repository"
)

// SourceOptions はイベントログソースの接続設定。
type SourceOptions struct {
	Kind            string // postgres または mongo
	DatabaseURL     string
	MongoURI        string
	MongoDatabase   string
	ConnectAttempts uint
}

// Source は1回の実行で使うイベントログと登録情報のリポジトリをまとめたもの。
// 呼び出し側がCloseする責任を持つ。
type Source struct {
	StatusLog repository.StatusLogRepository
	Registry  repository.FeedRegistryRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping は接続先の到達性を確認する。
func (s *Source) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close は接続を解放する。
func (s *Source) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenSource は設定に応じたイベントログソースに接続し、到達性を確認して返す。
// 接続できない場合はSOURCE_UNAVAILABLEを返す。
func OpenSource(ctx context.Context, opts SourceOptions, logger *slog.Logger) (*Source, error) {
	var (
		src *Source
		err error
	)
	switch opts.Kind {
	case "mongo":
		src, err = openMongoSource(ctx, opts)
	case "postgres", "":
		src, err = openPostgresSource(opts)
	default:
		return nil, fmt.Errorf("unknown event source: %s", opts.Kind)
	}
	if err != nil {
		return nil, model.NewSourceUnavailableError(err.Error())
	}

	if err := WaitReady(ctx, sourceName(opts.Kind), src.ping, opts.ConnectAttempts, logger); err != nil {
		if cerr := src.Close(context.Background()); cerr != nil {
			logger.Warn("接続のクローズに失敗しました", slog.String("error", cerr.Error()))
		}
		return nil, model.NewSourceUnavailableError(err.Error())
	}

	logger.Info("イベントログソースに接続しました", slog.String("source", sourceName(opts.Kind)))
	return src, nil
}

func sourceName(kind string) string {
	if kind == "" {
		return "postgres"
	}
	return kind
}

func openPostgresSource(opts SourceOptions) (*Source, error) {
	db, err := Open(opts.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return newPostgresSource(db), nil
}

func newPostgresSource(db *sql.DB) *Source {
	return &Source{
		StatusLog: repository.NewPostgresStatusLogRepo(db),
		Registry:  repository.NewPostgresFeedRegistryRepo(db),
		ping:      db.PingContext,
		close:     func(context.Context) error { return db.Close() },
	}
}

func openMongoSource(ctx context.Context, opts SourceOptions) (*Source, error) {
	client, err := OpenMongo(ctx, opts.MongoURI)
	if err != nil {
		return nil, err
	}
	return newMongoSource(client, opts.MongoDatabase), nil
}

func newMongoSource(client *mongo.Client, database string) *Source {
	if database == "" {
		database = "feedreader"
	}
	db := client.Database(database)
	return &Source{
		StatusLog: repository.NewMongoStatusLogRepo(db),
		Registry:  repository.NewMongoFeedRegistryRepo(db),
		ping:      PingMongo(client),
		close:     client.Disconnect,
	}
}
