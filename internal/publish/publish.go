// Package publish は作成したレポートファイルの外部ストレージへのアップロードを提供する。
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// Publisher はレポートファイルを公開するインターフェース。
type Publisher interface {
	// Publish はローカルのファイルをアップロードし、公開先の名前を返す。
	Publish(ctx context.Context, localPath string) (string, error)
}

// Noop は何もしないPublisher。アップロード先が設定されていない場合に使う。
type Noop struct{}

// Publish はローカルパスをそのまま返す。
func (Noop) Publish(_ context.Context, localPath string) (string, error) {
	return localPath, nil
}

// ObjectStore はオブジェクト単位の書き込み先。
type ObjectStore interface {
	NewWriter(ctx context.Context, object string) io.WriteCloser
}

// gcsStore はCloud StorageのバケットをObjectStoreとして扱う。
type gcsStore struct {
	bucket *storage.BucketHandle
}

func (s *gcsStore) NewWriter(ctx context.Context, object string) io.WriteCloser {
	w := s.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType(object)
	return w
}

func contentType(object string) string {
	switch filepath.Ext(object) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// StorePublisher はObjectStoreへリトライ付きでアップロードするPublisher。
type StorePublisher struct {
	store    ObjectStore
	location string
	prefix   string
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// NewStorePublisher はStorePublisherを生成する。locationはログ出力用の公開先名。
func NewStorePublisher(store ObjectStore, location, prefix string, logger *slog.Logger) *StorePublisher {
	return &StorePublisher{
		store:    store,
		location: location,
		prefix:   prefix,
		attempts: 3,
		delay:    time.Second,
		logger:   logger,
	}
}

// NewGCS はCloud Storageのバケットへアップロードするpublisherと、クライアントのクローズ関数を返す。
// 認証情報はApplication Default Credentialsから取得する。
func NewGCS(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*StorePublisher, func() error, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	p := NewStorePublisher(&gcsStore{bucket: client.Bucket(bucket)}, "gs://"+bucket, prefix, logger)
	return p, client.Close, nil
}

// ObjectName はローカルパスに対応するオブジェクト名を返す。
func (p *StorePublisher) ObjectName(localPath string) string {
	return path.Join(p.prefix, filepath.Base(localPath))
}

// Publish はファイルをアップロードする。失敗してもローカルのファイルは残る。
func (p *StorePublisher) Publish(ctx context.Context, localPath string) (string, error) {
	object := p.ObjectName(localPath)

	err := retry.Do(
		func() error {
			return p.upload(ctx, localPath, object)
		},
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("レポートのアップロードを再試行します",
				slog.String("object", object),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("レポートのアップロードに失敗しました (%s): %w", localPath, err)
	}

	p.logger.Info("レポートをアップロードしました",
		slog.String("location", p.location),
		slog.String("object", object),
	)
	return object, nil
}

func (p *StorePublisher) upload(ctx context.Context, localPath, object string) error {
	f, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return retry.Unrecoverable(err)
		}
		return err
	}
	defer f.Close()

	w := p.store.NewWriter(ctx, object)
	if _, err := io.Copy(w, f); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			p.logger.Warn("書き込み失敗後のクローズに失敗しました", slog.String("error", closeErr.Error()))
		}
		return fmt.Errorf("write to storage: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close storage writer: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ Publisher = Noop{}
	_ Publisher = (*StorePublisher)(nil)
)
