package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrStateNotFound 状态不存在。
var ErrStateNotFound = fmt.Errorf("agent state not found")

// StateStore 会话状态持久化接口。挂起的会话靠它跨进程恢复。
type StateStore interface {
	Save(ctx context.Context, state *State) error
	Load(ctx context.Context, id string) (*State, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStateStore 进程内状态存储,用于测试与单机部署。
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStateStore 创建内存状态存储。
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string][]byte)}
}

func (s *MemoryStateStore) Save(_ context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", state.ID, err)
	}
	s.mu.Lock()
	s.states[state.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) Load(_ context.Context, id string) (*State, error) {
	s.mu.RLock()
	data, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state %s: %w", id, err)
	}
	return &state, nil
}

func (s *MemoryStateStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
	return nil
}

// RedisStateStore Redis 状态存储,带 TTL,供多副本部署共享挂起会话。
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStateStore 创建 Redis 状态存储。ttl<=0 时默认 24h。
func NewRedisStateStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStateStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStateStore{
		client: client,
		prefix: "kmachat:agent:state:",
		ttl:    ttl,
		logger: logger,
	}
}

func (s *RedisStateStore) key(id string) string { return s.prefix + id }

func (s *RedisStateStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", state.ID, err)
	}
	if err := s.client.Set(ctx, s.key(state.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save state %s: %w", state.ID, err)
	}
	s.logger.Debug("agent state saved",
		zap.String("id", state.ID),
		zap.String("phase", string(state.Phase)))
	return nil
}

func (s *RedisStateStore) Load(ctx context.Context, id string) (*State, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", id, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state %s: %w", id, err)
	}
	return &state, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete state %s: %w", id, err)
	}
	return nil
}
