package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// casRetries 乐观并发写回的重试上限。
const casRetries = 5

// MongoCounterStore 基于 MongoDB 的计数存储,多副本部署共享。
// 写回用版本号 CAS,并发冲突时重试,不会丢计数。
type MongoCounterStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoCounterStore 创建 Mongo 计数存储,集合为 rate_limits。
func NewMongoCounterStore(db *mongo.Database, logger *zap.Logger) *MongoCounterStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoCounterStore{coll: db.Collection("rate_limits"), logger: logger}
}

func (s *MongoCounterStore) Update(ctx context.Context, userID, username string, now time.Time, fn func(*Counters)) (*Counters, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		var current Counters
		err := s.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&current)
		fresh := errors.Is(err, mongo.ErrNoDocuments)
		if err != nil && !fresh {
			return nil, fmt.Errorf("load counters for %s: %w", userID, err)
		}

		var c *Counters
		if fresh {
			c = newCounters(userID, username, now)
		} else {
			c = &current
		}

		fn(c)
		prevVersion := c.Version
		c.Version++

		if fresh {
			_, err = s.coll.InsertOne(ctx, c)
			if mongo.IsDuplicateKeyError(err) {
				// 并发创建,重读后重试
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("insert counters for %s: %w", userID, err)
			}
			return c, nil
		}

		res, err := s.coll.ReplaceOne(ctx,
			bson.M{"user_id": userID, "version": prevVersion}, c)
		if err != nil {
			return nil, fmt.Errorf("update counters for %s: %w", userID, err)
		}
		if res.MatchedCount == 1 {
			return c, nil
		}
		// 版本冲突,重试
		s.logger.Debug("counter CAS conflict, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("update counters for %s: too many concurrent writers", userID)
}

func (s *MongoCounterStore) Get(ctx context.Context, userID string) (*Counters, error) {
	var c Counters
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCounterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load counters for %s: %w", userID, err)
	}
	return &c, nil
}

func (s *MongoCounterStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("delete counters for %s: %w", userID, err)
	}
	return nil
}

func (s *MongoCounterStore) List(ctx context.Context) ([]Counters, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetLimit(100))
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Counters
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode counters: %w", err)
	}
	return out, nil
}

// EnsureIndexes 建立 user_id 唯一索引,CAS 创建路径依赖它。
func (s *MongoCounterStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
