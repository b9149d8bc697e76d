package ratelimit

// Limits 单用户在各窗口内的预算。
type Limits struct {
	RequestsPerMinute int `json:"requestsPerMinute" yaml:"requestsPerMinute" bson:"requestsPerMinute"`
	RequestsPerHour   int `json:"requestsPerHour" yaml:"requestsPerHour" bson:"requestsPerHour"`
	RequestsPerDay    int `json:"requestsPerDay" yaml:"requestsPerDay" bson:"requestsPerDay"`
	TokensPerDay      int `json:"tokensPerDay" yaml:"tokensPerDay" bson:"tokensPerDay"`
	TokensPerMonth    int `json:"tokensPerMonth" yaml:"tokensPerMonth" bson:"tokensPerMonth"`
}

// RoleLimits 按角色区分的预算。
type RoleLimits struct {
	Admin Limits `json:"admin" yaml:"admin" bson:"admin"`
	User  Limits `json:"user" yaml:"user" bson:"user"`
}

// UserException 单用户的特批预算,优先于角色预算。
type UserException struct {
	Username string `json:"username" yaml:"username" bson:"username"`
	Limits   `yaml:",inline" bson:",inline"`
}

// Policy 限流策略。字段名与历史存量配置文档保持一致。
type Policy struct {
	Enabled        bool            `json:"enabled" yaml:"enabled" bson:"enabled"`
	DefaultLimits  Limits          `json:"defaultLimits" yaml:"defaultLimits" bson:"defaultLimits"`
	RoleLimits     RoleLimits      `json:"roleLimits" yaml:"roleLimits" bson:"roleLimits"`
	UserExceptions []UserException `json:"userExceptions" yaml:"userExceptions" bson:"userExceptions"`
}

// DefaultPolicy 返回默认策略。
func DefaultPolicy() *Policy {
	user := Limits{
		RequestsPerMinute: 10,
		RequestsPerHour:   100,
		RequestsPerDay:    500,
		TokensPerDay:      50000,
		TokensPerMonth:    500000,
	}
	admin := Limits{
		RequestsPerMinute: 30,
		RequestsPerHour:   300,
		RequestsPerDay:    1000,
		TokensPerDay:      200000,
		TokensPerMonth:    2000000,
	}
	return &Policy{
		Enabled:       true,
		DefaultLimits: user,
		RoleLimits:    RoleLimits{Admin: admin, User: user},
	}
}

// Resolve 解析某用户生效的预算:特批 > 角色 > 默认。
// 策略文档可能只配了默认预算,角色预算为零值时视作未配置,
// 回落默认而不是把零当上限拒绝所有请求。
func (p *Policy) Resolve(username, role string) Limits {
	for _, exc := range p.UserExceptions {
		if exc.Username == username {
			return exc.Limits
		}
	}
	var roleLimits Limits
	switch role {
	case "admin":
		roleLimits = p.RoleLimits.Admin
	case "user":
		roleLimits = p.RoleLimits.User
	}
	if roleLimits != (Limits{}) {
		return roleLimits
	}
	return p.DefaultLimits
}
