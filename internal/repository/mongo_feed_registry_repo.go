package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hitoshi/feedaudit/internal/model"
)

// feedsCollection はフィード登録情報のコレクション名。
const feedsCollection = "feeds"

// feedDocument はfeedsコレクションのドキュメント。
type feedDocument struct {
	FeedURL string `bson:"feedUrl"`
	Status  string `bson:"status"`
}

// MongoFeedRegistryRepo はMongoDBを使用したフィード登録情報リポジトリ。
type MongoFeedRegistryRepo struct {
	coll *mongo.Collection
}

// NewMongoFeedRegistryRepo はMongoFeedRegistryRepoを生成する。
func NewMongoFeedRegistryRepo(db *mongo.Database) *MongoFeedRegistryRepo {
	return &MongoFeedRegistryRepo{coll: db.Collection(feedsCollection)}
}

// FindByFeedURL はフィードURLで登録情報を検索する。見つからない場合はnilを返す。
func (r *MongoFeedRegistryRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.RegistryRecord, error) {
	var doc feedDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "feedUrl", Value: feedURL}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィード登録情報の取得に失敗しました: %w", err)
	}

	return &model.RegistryRecord{
		FeedURL: doc.FeedURL,
		Status:  model.RegistryStatus(doc.Status),
	}, nil
}

// compile-time interface check
var _ FeedRegistryRepository = (*MongoFeedRegistryRepo)(nil)
