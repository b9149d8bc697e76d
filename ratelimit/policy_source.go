package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/kmachat/config"
)

// PolicySource 提供当前生效的策略。实现必须可并发读。
type PolicySource interface {
	Current() *Policy
}

// StaticPolicySource 固定策略,测试与简单部署用。
type StaticPolicySource struct {
	policy *Policy
}

// NewStaticPolicySource 创建固定策略源。policy 为 nil 时用默认策略。
func NewStaticPolicySource(policy *Policy) *StaticPolicySource {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &StaticPolicySource{policy: policy}
}

func (s *StaticPolicySource) Current() *Policy { return s.policy }

// FilePolicySource 从 YAML 文件加载策略,文件变更时热重载。
// 重载失败保留旧策略。
type FilePolicySource struct {
	path    string
	current atomic.Pointer[Policy]
	watcher *config.FileWatcher
	logger  *zap.Logger
}

// NewFilePolicySource 创建文件策略源并加载一次。
// 文件不存在时以默认策略启动,等待文件创建。
func NewFilePolicySource(path string, logger *zap.Logger) (*FilePolicySource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FilePolicySource{path: path, logger: logger}

	if err := s.reload(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logger.Warn("rate limit policy file missing, using defaults", zap.String("path", path))
		s.current.Store(DefaultPolicy())
	}

	watcher, err := config.NewFileWatcher([]string{path}, config.WithWatcherLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("watch policy file: %w", err)
	}
	watcher.OnChange(func(event config.FileEvent) {
		if err := s.reload(); err != nil {
			s.logger.Error("rate limit policy reload failed, keeping previous",
				zap.String("path", event.Path),
				zap.Error(err))
		}
	})
	s.watcher = watcher
	return s, nil
}

// Start 启动文件监听。
func (s *FilePolicySource) Start(ctx context.Context) error {
	return s.watcher.Start(ctx)
}

// Stop 停止文件监听。
func (s *FilePolicySource) Stop() error {
	return s.watcher.Stop()
}

func (s *FilePolicySource) Current() *Policy { return s.current.Load() }

func (s *FilePolicySource) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return fmt.Errorf("parse policy file %s: %w", s.path, err)
	}
	s.current.Store(policy)
	s.logger.Info("rate limit policy loaded", zap.String("path", s.path))
	return nil
}

// settingsDoc settings 集合中的策略文档。
type settingsDoc struct {
	Type      string    `bson:"type"`
	Settings  Policy    `bson:"settings"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoPolicySource 从 MongoDB settings 集合加载策略,周期刷新。
type MongoPolicySource struct {
	coll    *mongo.Collection
	current atomic.Pointer[Policy]
	logger  *zap.Logger
}

// NewMongoPolicySource 创建 Mongo 策略源并加载一次。
// 库中无策略文档时用默认策略。
func NewMongoPolicySource(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*MongoPolicySource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MongoPolicySource{coll: db.Collection("settings"), logger: logger}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoPolicySource) Current() *Policy { return s.current.Load() }

// Refresh 重新加载策略文档。
func (s *MongoPolicySource) Refresh(ctx context.Context) error {
	var doc settingsDoc
	err := s.coll.FindOne(ctx, bson.M{"type": "rate_limit"}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		s.current.Store(DefaultPolicy())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load rate limit policy: %w", err)
	}
	policy := doc.Settings
	s.current.Store(&policy)
	return nil
}

// Start 周期刷新策略,interval<=0 时默认 30s。
func (s *MongoPolicySource) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil {
					s.logger.Warn("rate limit policy refresh failed, keeping previous", zap.Error(err))
				}
			}
		}
	}()
}

// Save 写回策略文档,管理员更新入口。
func (s *MongoPolicySource) Save(ctx context.Context, policy *Policy) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"type": "rate_limit"},
		bson.M{"$set": bson.M{"settings": policy, "updated_at": time.Now().UTC()}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save rate limit policy: %w", err)
	}
	s.current.Store(policy)
	return nil
}
