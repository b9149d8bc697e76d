package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/BaSui01/kmachat/config"
	"github.com/BaSui01/kmachat/ratelimit"
)

// runUsage 管理端用量查询与重置。需要配置 MongoDB,
// 内存计数只在 chat 进程内可见。
func runUsage(args []string) {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to config file")
	reset := fs.String("reset", "", "Reset counters for the given user ID")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.MongoURI == "" {
		fmt.Fprintln(os.Stderr, "usage command requires storage.mongo_uri")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Storage.MongoURI))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect MongoDB: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	store := ratelimit.NewMongoCounterStore(client.Database(cfg.Storage.MongoDB), nil)
	limiter := ratelimit.NewLimiter(ratelimit.NewStaticPolicySource(nil), store, nil)

	if *reset != "" {
		if err := limiter.Reset(ctx, *reset); err != nil {
			fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Counters reset for %s\n", *reset)
		return
	}

	all, err := limiter.AllStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list usage: %v\n", err)
		os.Exit(1)
	}
	if len(all) == 0 {
		fmt.Println("No usage recorded")
		return
	}

	summary := ratelimit.Summarize(all)
	fmt.Printf("Today: %d requests, %d tokens | This month: %d tokens | Active users: %d\n",
		summary.TotalRequestsToday, summary.TotalTokensToday,
		summary.TotalTokensThisMonth, summary.ActiveUsersCount)
	if len(summary.MostActiveUsers) > 0 {
		fmt.Println("Most active (requests today):")
		for _, u := range summary.MostActiveUsers {
			fmt.Printf("  %-12s %-12s %d\n", u.UserID, u.Username, u.Requests)
		}
	}
	if len(summary.MostTokenUsers) > 0 {
		fmt.Println("Most tokens (this month):")
		for _, u := range summary.MostTokenUsers {
			fmt.Printf("  %-12s %-12s %d\n", u.UserID, u.Username, u.Tokens)
		}
	}

	fmt.Println()
	for _, c := range all {
		fmt.Printf("%-12s %-12s req/min=%-4d req/h=%-5d req/d=%-5d tok/d=%-8d tok/m=%d\n",
			c.UserID, c.Username,
			c.RequestsPerMinute, c.RequestsPerHour, c.RequestsPerDay,
			c.TokensToday, c.TokensThisMonth)
	}
}
