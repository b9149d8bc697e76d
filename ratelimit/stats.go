package ratelimit

import (
	"context"
	"sort"
)

// summaryTopN 排行榜长度。
const summaryTopN = 5

// UserActivity 用量排行榜条目。
type UserActivity struct {
	UserID   string `json:"userId" bson:"userId"`
	Username string `json:"username" bson:"username"`
	Requests int    `json:"requests" bson:"requests"`
	Tokens   int    `json:"tokens" bson:"tokens"`
}

// UsageSummary 全体用户的用量汇总,管理端概览。
type UsageSummary struct {
	TotalRequestsToday   int            `json:"totalRequestsToday"`
	TotalTokensToday     int            `json:"totalTokensToday"`
	TotalTokensThisMonth int            `json:"totalTokensThisMonth"`
	ActiveUsersCount     int            `json:"activeUsersCount"`
	MostActiveUsers      []UserActivity `json:"mostActiveUsers"`
	MostTokenUsers       []UserActivity `json:"mostTokenUsers"`
}

// Summarize 聚合一组计数器。活跃用户指当日有过请求的用户;
// 排行榜各取前五,零用量不上榜。
func Summarize(counters []Counters) *UsageSummary {
	summary := &UsageSummary{}

	for _, c := range counters {
		summary.TotalRequestsToday += c.RequestsPerDay
		summary.TotalTokensToday += c.TokensToday
		summary.TotalTokensThisMonth += c.TokensThisMonth
		if c.RequestsPerDay > 0 {
			summary.ActiveUsersCount++
		}
	}

	summary.MostActiveUsers = topUsers(counters,
		func(c Counters) int { return c.RequestsPerDay })
	summary.MostTokenUsers = topUsers(counters,
		func(c Counters) int { return c.TokensThisMonth })
	return summary
}

// topUsers 按 metric 降序取前 summaryTopN 个非零用户,同值按用户 ID 定序。
func topUsers(counters []Counters, metric func(Counters) int) []UserActivity {
	ranked := make([]Counters, 0, len(counters))
	for _, c := range counters {
		if metric(c) > 0 {
			ranked = append(ranked, c)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		mi, mj := metric(ranked[i]), metric(ranked[j])
		if mi != mj {
			return mi > mj
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	if len(ranked) > summaryTopN {
		ranked = ranked[:summaryTopN]
	}

	out := make([]UserActivity, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, UserActivity{
			UserID:   c.UserID,
			Username: c.Username,
			Requests: c.RequestsPerDay,
			Tokens:   c.TokensThisMonth,
		})
	}
	return out
}

// UsageSummary 汇总全部用户的当前用量,管理端概览接口。
func (l *Limiter) UsageSummary(ctx context.Context) (*UsageSummary, error) {
	counters, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(counters), nil
}
