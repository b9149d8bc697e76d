package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// User 限流主体。
type User struct {
	ID       string
	Username string
	Role     string
}

// Decision 一次限流裁决。拒绝时 Reason 为面向用户的越南语说明。
type Decision struct {
	Allowed  bool      `json:"allowed"`
	Reason   string    `json:"reason,omitempty"`
	Counters *Counters `json:"counters,omitempty"`
	Limits   Limits    `json:"limits"`
}

// Limiter 按策略对用户用量记账并裁决。
// 记账先于检查:即便本次被拒,消耗也已入账,与存量行为一致。
type Limiter struct {
	source PolicySource
	store  CounterStore
	logger *zap.Logger

	// now 可注入,测试用。
	now func() time.Time
}

// NewLimiter 创建限流器。
func NewLimiter(source PolicySource, store CounterStore, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CheckAndCharge 为用户记一次用量并检查是否超限。
// countAsRequest=false 时只记 token(预检或补记 token 用)。
func (l *Limiter) CheckAndCharge(ctx context.Context, user User, tokens int, countAsRequest bool) (*Decision, error) {
	policy := l.source.Current()
	if policy == nil || !policy.Enabled {
		return &Decision{Allowed: true}, nil
	}

	limits := policy.Resolve(user.Username, user.Role)
	now := l.now()

	counters, err := l.store.Update(ctx, user.ID, user.Username, now, func(c *Counters) {
		c.applyResets(now)
		c.charge(tokens, countAsRequest, now)
	})
	if err != nil {
		return nil, fmt.Errorf("charge usage for %s: %w", user.ID, err)
	}

	decision := &Decision{Allowed: true, Counters: counters, Limits: limits}
	switch {
	case counters.RequestsPerMinute > limits.RequestsPerMinute:
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("Vượt quá giới hạn yêu cầu mỗi phút (%d)", limits.RequestsPerMinute)
	case counters.RequestsPerHour > limits.RequestsPerHour:
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("Vượt quá giới hạn yêu cầu mỗi giờ (%d)", limits.RequestsPerHour)
	case counters.RequestsPerDay > limits.RequestsPerDay:
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("Vượt quá giới hạn yêu cầu mỗi ngày (%d)", limits.RequestsPerDay)
	case counters.TokensToday > limits.TokensPerDay:
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("Vượt quá giới hạn token mỗi ngày (%d)", limits.TokensPerDay)
	case counters.TokensThisMonth > limits.TokensPerMonth:
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("Vượt quá giới hạn token mỗi tháng (%d)", limits.TokensPerMonth)
	}

	if !decision.Allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("user_id", user.ID),
			zap.String("username", user.Username),
			zap.String("reason", decision.Reason))
	}
	return decision, nil
}

// Reset 清除某用户的全部计数,管理员操作。
func (l *Limiter) Reset(ctx context.Context, userID string) error {
	if err := l.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("reset rate limit for %s: %w", userID, err)
	}
	l.logger.Info("rate limit reset", zap.String("user_id", userID))
	return nil
}

// Stats 返回某用户的当前用量与生效预算。
func (l *Limiter) Stats(ctx context.Context, user User) (*Decision, error) {
	policy := l.source.Current()
	limits := Limits{}
	if policy != nil {
		limits = policy.Resolve(user.Username, user.Role)
	}

	counters, err := l.store.Get(ctx, user.ID)
	if errors.Is(err, ErrCounterNotFound) {
		return &Decision{Allowed: true, Limits: limits}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Decision{Allowed: true, Counters: counters, Limits: limits}, nil
}

// AllStats 返回全部用户的用量,管理端使用。
func (l *Limiter) AllStats(ctx context.Context) ([]Counters, error) {
	return l.store.List(ctx)
}
