package ratelimit

import "time"

// ResetTimes 各窗口的下次重置时刻。
type ResetTimes struct {
	Minute time.Time `json:"minute" bson:"minute"`
	Hour   time.Time `json:"hour" bson:"hour"`
	Day    time.Time `json:"day" bson:"day"`
	Month  time.Time `json:"month" bson:"month"`
}

// Counters 单用户的用量计数。窗口重置是惰性的:
// 只在下一次访问时按 ResetTimes 结算。
type Counters struct {
	UserID            string     `json:"user_id" bson:"user_id"`
	Username          string     `json:"username" bson:"username"`
	RequestsPerMinute int        `json:"requestsPerMinute" bson:"requestsPerMinute"`
	RequestsPerHour   int        `json:"requestsPerHour" bson:"requestsPerHour"`
	RequestsPerDay    int        `json:"requestsPerDay" bson:"requestsPerDay"`
	TokensToday       int        `json:"tokensToday" bson:"tokensToday"`
	TokensThisMonth   int        `json:"tokensThisMonth" bson:"tokensThisMonth"`
	ResetTimes        ResetTimes `json:"resetTimes" bson:"resetTimes"`
	LastUpdated       time.Time  `json:"lastUpdated" bson:"lastUpdated"`

	// Version 乐观并发控制版本号,仅存储层使用。
	Version int64 `json:"-" bson:"version"`
}

// newCounters 创建零值计数器,窗口从 now 起算。
func newCounters(userID, username string, now time.Time) *Counters {
	return &Counters{
		UserID:   userID,
		Username: username,
		ResetTimes: ResetTimes{
			Minute: now.Add(time.Minute),
			Hour:   now.Add(time.Hour),
			Day:    now.Add(24 * time.Hour),
			Month:  firstOfNextMonth(now),
		},
		LastUpdated: now,
	}
}

// applyResets 结算已过期的窗口。
func (c *Counters) applyResets(now time.Time) {
	if !now.Before(c.ResetTimes.Minute) {
		c.RequestsPerMinute = 0
		c.ResetTimes.Minute = now.Add(time.Minute)
	}
	if !now.Before(c.ResetTimes.Hour) {
		c.RequestsPerHour = 0
		c.ResetTimes.Hour = now.Add(time.Hour)
	}
	if !now.Before(c.ResetTimes.Day) {
		c.RequestsPerDay = 0
		c.TokensToday = 0
		c.ResetTimes.Day = now.Add(24 * time.Hour)
	}
	if !now.Before(c.ResetTimes.Month) {
		c.TokensThisMonth = 0
		c.ResetTimes.Month = firstOfNextMonth(now)
	}
}

// charge 记账。请求计数仅在 countAsRequest 时增加,token 计数总是增加。
func (c *Counters) charge(tokens int, countAsRequest bool, now time.Time) {
	if countAsRequest {
		c.RequestsPerMinute++
		c.RequestsPerHour++
		c.RequestsPerDay++
	}
	c.TokensToday += tokens
	c.TokensThisMonth += tokens
	c.LastUpdated = now
}

// firstOfNextMonth 下月一日零点,跨年正确。
func firstOfNextMonth(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
}
