// Package ratelimit enforces per-user request and token budgets over sliding
// windows (minute, hour, day, month). Policies resolve per user with
// exception > role > default priority and hot-reload from a YAML file or the
// MongoDB settings collection. Counters live in memory or MongoDB and update
// atomically.
package ratelimit
