package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrCounterNotFound 用户尚无用量记录。
var ErrCounterNotFound = fmt.Errorf("rate limit counters not found")

// CounterStore 用量计数存储。Update 对单用户原子执行:
// 并发调用对同一用户串行化,不会丢计数。
type CounterStore interface {
	// Update 读取(或新建)计数器,应用 fn 后写回,返回写回后的副本。
	Update(ctx context.Context, userID, username string, now time.Time, fn func(*Counters)) (*Counters, error)
	// Get 返回计数器副本,不存在时返回 ErrCounterNotFound。
	Get(ctx context.Context, userID string) (*Counters, error)
	// Delete 删除计数器,用于管理员重置。
	Delete(ctx context.Context, userID string) error
	// List 返回全部计数器,供管理端统计。
	List(ctx context.Context) ([]Counters, error)
}

// MemoryCounterStore 进程内计数存储。
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*Counters
}

// NewMemoryCounterStore 创建内存计数存储。
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*Counters)}
}

func (s *MemoryCounterStore) Update(_ context.Context, userID, username string, now time.Time, fn func(*Counters)) (*Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[userID]
	if !ok {
		c = newCounters(userID, username, now)
		s.counters[userID] = c
	}
	fn(c)
	c.Version++

	out := *c
	return &out, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, userID string) (*Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[userID]
	if !ok {
		return nil, ErrCounterNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.counters, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryCounterStore) List(_ context.Context) ([]Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Counters, 0, len(s.counters))
	for _, c := range s.counters {
		out = append(out, *c)
	}
	return out, nil
}
