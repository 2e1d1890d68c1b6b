package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/feedaudit/internal/model"
)

// statusLogCollection はステータスログのコレクション名。
const statusLogCollection = "feed_status_log"

// statusLogDocument はfeed_status_logコレクションのドキュメント。
type statusLogDocument struct {
	FeedURL string    `bson:"feedUrl"`
	Status  string    `bson:"status"`
	Date    time.Time `bson:"date"`
}

// MongoStatusLogRepo はMongoDBを使用したステータスログリポジトリ。
type MongoStatusLogRepo struct {
	coll *mongo.Collection
}

// NewMongoStatusLogRepo はMongoStatusLogRepoを生成する。
func NewMongoStatusLogRepo(db *mongo.Database) *MongoStatusLogRepo {
	return &MongoStatusLogRepo{coll: db.Collection(statusLogCollection)}
}

// ForEachEvent は全イベントをfeedUrl、dateの昇順で走査する。
// ソートはサーバー側で行い、大きなコレクションに備えてディスク使用を許可する。
func (r *MongoStatusLogRepo) ForEachEvent(ctx context.Context, fn func(model.StatusEvent) error) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "feedUrl", Value: 1}, {Key: "date", Value: 1}}).
		SetProjection(bson.D{{Key: "feedUrl", Value: 1}, {Key: "status", Value: 1}, {Key: "date", Value: 1}}).
		SetAllowDiskUse(true)

	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("ステータスログの取得に失敗しました: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc statusLogDocument
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("ステータスログの読み取りに失敗しました: %w", err)
		}

		if err := fn(model.StatusEvent{
			FeedURL: doc.FeedURL,
			Status:  model.FeedStatus(doc.Status),
			Date:    doc.Date,
		}); err != nil {
			return err
		}
	}

	if err := cur.Err(); err != nil {
		return fmt.Errorf("ステータスログの走査に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StatusLogRepository = (*MongoStatusLogRepo)(nil)
