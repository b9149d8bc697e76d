package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyResets_Windows(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	c := newCounters("u1", "alice", start)
	c.charge(100, true, start)

	// 窗口未到期时不动
	c.applyResets(start.Add(30 * time.Second))
	assert.Equal(t, 1, c.RequestsPerMinute)

	// 分钟窗口到期只清分钟计数
	c.applyResets(start.Add(time.Minute))
	assert.Equal(t, 0, c.RequestsPerMinute)
	assert.Equal(t, 1, c.RequestsPerHour)
	assert.Equal(t, 100, c.TokensToday)

	// 天窗口到期清请求与当日 token
	c.applyResets(start.Add(24 * time.Hour))
	assert.Equal(t, 0, c.RequestsPerDay)
	assert.Equal(t, 0, c.TokensToday)
	assert.Equal(t, 100, c.TokensThisMonth)

	// 月窗口到期清当月 token
	c.applyResets(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 0, c.TokensThisMonth)
}

func TestCharge_TokensOnly(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newCounters("u1", "alice", now)
	c.charge(250, false, now)

	assert.Equal(t, 0, c.RequestsPerMinute)
	assert.Equal(t, 0, c.RequestsPerHour)
	assert.Equal(t, 0, c.RequestsPerDay)
	assert.Equal(t, 250, c.TokensToday)
	assert.Equal(t, 250, c.TokensThisMonth)
}

func TestFirstOfNextMonth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{
			time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC),
			time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			// 跨年
			time.Date(2025, time.December, 31, 23, 59, 0, 0, time.UTC),
			time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			// 一号当天也指向下月
			time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, firstOfNextMonth(tc.in))
	}
}
