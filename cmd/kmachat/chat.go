package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/agent"
	"github.com/BaSui01/kmachat/config"
	"github.com/BaSui01/kmachat/llm"
	"github.com/BaSui01/kmachat/llm/tokenizer"
	"github.com/BaSui01/kmachat/providers/ollama"
	"github.com/BaSui01/kmachat/rag"
	"github.com/BaSui01/kmachat/ratelimit"
	"github.com/BaSui01/kmachat/score"
	"github.com/BaSui01/kmachat/tools"
)

// app 聚合一次会话进程需要的全部组件。
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	orchestrator *agent.Orchestrator
	states       agent.StateStore
	limiter      *ratelimit.Limiter
	counter      tokenizer.Counter
	policyFile   *ratelimit.FilePolicySource
}

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to config file")
	rebuild := fs.Bool("rebuild", false, "Force index rebuild on startup")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := buildLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger, *rebuild)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	if a.policyFile != nil {
		if err := a.policyFile.Start(ctx); err != nil {
			logger.Fatal("policy watcher failed", zap.Error(err))
		}
		defer a.policyFile.Stop()
	}

	a.chatLoop(ctx)
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, rebuild bool) (*app, error) {
	provider := ollama.NewOllamaProvider(ollama.Config{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	retriever, err := buildRetriever(ctx, cfg, logger, rebuild)
	if err != nil {
		return nil, err
	}

	scoreStore, err := score.Open(cfg.Storage.ScoreDB, logger)
	if err != nil {
		return nil, fmt.Errorf("open score database: %w", err)
	}
	if err := seedDemoData(ctx, scoreStore); err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(logger)
	if err := tools.RegisterRetrieval(registry, retriever, cfg.Index.TopK, logger); err != nil {
		return nil, err
	}
	if err := tools.RegisterScoreTools(registry, scoreStore, logger); err != nil {
		return nil, err
	}
	if err := tools.RegisterCalculator(registry, logger); err != nil {
		return nil, err
	}
	executor := tools.NewExecutor(registry, logger)

	orchestrator := agent.New(provider, registry, executor, agent.Config{
		MaxRewrites: cfg.Agent.MaxRewrites,
		Model:       cfg.LLM.Model,
	}, logger)

	states, err := buildStateStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
		states:       states,
		counter:      tokenizer.NewTiktokenCounter(""),
	}
	if cfg.RateLimit.Enabled {
		if err := a.buildLimiter(ctx); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// buildRetriever 加载索引,缺失、损坏或要求重建时从原始文档重建。
func buildRetriever(ctx context.Context, cfg *config.Config, logger *zap.Logger, rebuild bool) (*rag.HybridRetriever, error) {
	embedder := rag.NewOllamaEmbedder(rag.OllamaEmbedderConfig{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	})
	chunker := rag.NewChunker(rag.ChunkingConfig{
		ChunkSize:    cfg.Index.ChunkSize,
		ChunkOverlap: cfg.Index.ChunkOverlap,
	}, logger)
	store := rag.NewIndexStore(cfg.Index.Dir, chunker, embedder, rag.DefaultLexicalConfig(), logger)

	retriever := rag.NewHybridRetriever(rag.HybridConfig{TopK: cfg.Index.TopK}, nil, logger)

	var lexical *rag.LexicalIndex
	var vector *rag.VectorIndex
	var err error
	if rebuild {
		lexical, vector, err = store.Rebuild(ctx, cfg.Index.DataDir)
		if err != nil {
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
	} else {
		lexical, vector, err = store.Load()
		if err != nil {
			var llmErr *llm.Error
			if !errors.As(err, &llmErr) || llmErr.Code != llm.ErrRetrievalUnavailable {
				return nil, err
			}
			logger.Warn("index unavailable, rebuilding", zap.Error(err))
			lexical, vector, err = store.Rebuild(ctx, cfg.Index.DataDir)
			if err != nil {
				return nil, fmt.Errorf("rebuild index: %w", err)
			}
		}
	}
	retriever.SetIndexes(lexical, vector)
	return retriever, nil
}

func buildStateStore(cfg *config.Config, logger *zap.Logger) (agent.StateStore, error) {
	if cfg.Storage.RedisURL == "" {
		return agent.NewMemoryStateStore(), nil
	}
	opts, err := redis.ParseURL(cfg.Storage.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return agent.NewRedisStateStore(redis.NewClient(opts), cfg.Agent.StateTTL, logger), nil
}

func (a *app) buildLimiter(ctx context.Context) error {
	var source ratelimit.PolicySource
	if a.cfg.RateLimit.PolicyFile != "" {
		fileSource, err := ratelimit.NewFilePolicySource(a.cfg.RateLimit.PolicyFile, a.logger)
		if err != nil {
			return err
		}
		a.policyFile = fileSource
		source = fileSource
	} else {
		source = ratelimit.NewStaticPolicySource(nil)
	}

	var store ratelimit.CounterStore
	if a.cfg.Storage.MongoURI != "" {
		client, err := mongo.Connect(options.Client().ApplyURI(a.cfg.Storage.MongoURI))
		if err != nil {
			return fmt.Errorf("connect mongodb: %w", err)
		}
		db := client.Database(a.cfg.Storage.MongoDB)
		mongoStore := ratelimit.NewMongoCounterStore(db, a.logger)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return err
		}
		store = mongoStore
	} else {
		store = ratelimit.NewMemoryCounterStore()
	}

	a.limiter = ratelimit.NewLimiter(source, store, a.logger)
	return nil
}

// chatLoop 交互式对话。挂起等待补充输入时在同一循环里继续读取。
func (a *app) chatLoop(ctx context.Context) {
	user := ratelimit.User{ID: "cli", Username: "cli", Role: "user"}
	scanner := bufio.NewScanner(os.Stdin)
	var history []llm.Message

	fmt.Println("KMA Chatbot - gõ 'exit' để thoát.")
	for {
		fmt.Print("Bạn: ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bot: Tạm biệt!")
			return
		}

		if !a.allow(ctx, user) {
			continue
		}

		state, err := a.orchestrator.Run(ctx, history, input)
		if err != nil {
			a.logger.Error("run failed", zap.Error(err))
			continue
		}

		// 缺少学号等输入时挂起,提示后在本循环内恢复
		for state.AwaitingHumanInput {
			if err := a.states.Save(ctx, state); err != nil {
				a.logger.Warn("save state failed", zap.Error(err))
			}
			fmt.Printf("Bot: %s\n", state.HumanInputPrompt)
			fmt.Print("Bạn: ")
			if !scanner.Scan() {
				return
			}
			reply := strings.TrimSpace(scanner.Text())

			state, err = a.states.Load(ctx, state.ID)
			if err != nil {
				a.logger.Error("load state failed", zap.Error(err))
				break
			}
			state, err = a.orchestrator.Resume(ctx, state, reply)
			if err != nil {
				a.logger.Error("resume failed", zap.Error(err))
				break
			}
		}
		if state == nil {
			continue
		}
		_ = a.states.Delete(ctx, state.ID)

		answer := ""
		if last := state.LastMessage(); last != nil && last.Role == llm.RoleAssistant {
			answer = last.Content
		}
		fmt.Printf("Bot: %s\n", answer)

		history = append(history, llm.NewUserMessage(input), llm.NewAssistantMessage(answer))
		a.chargeTokens(ctx, user, state.Messages)
	}
}

// allow 请求级限流检查。拒绝时向用户输出越南语说明。
func (a *app) allow(ctx context.Context, user ratelimit.User) bool {
	if a.limiter == nil {
		return true
	}
	decision, err := a.limiter.CheckAndCharge(ctx, user, 0, true)
	if err != nil {
		a.logger.Warn("rate limit check failed", zap.Error(err))
		return true
	}
	if !decision.Allowed {
		fmt.Printf("Bot: %s\n", decision.Reason)
		return false
	}
	return true
}

// chargeTokens 事后补记本轮消耗的 token,不计请求数。
func (a *app) chargeTokens(ctx context.Context, user ratelimit.User, messages []llm.Message) {
	if a.limiter == nil {
		return
	}
	tokens := a.counter.CountMessages(messages)
	if _, err := a.limiter.CheckAndCharge(ctx, user, tokens, false); err != nil {
		a.logger.Warn("token charge failed", zap.Error(err))
	}
}

// seedDemoData 空库时写入演示数据,方便开箱即用。
func seedDemoData(ctx context.Context, store *score.Store) error {
	existing, err := store.GetStudent(ctx, "CT050401")
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	f := func(v float64) *float64 { return &v }
	s := func(v string) *string { return &v }
	students := []score.Student{
		{StudentCode: "CT050401", StudentName: "Nguyễn Văn An", StudentClass: "CT05A"},
		{StudentCode: "AT170233", StudentName: "Trần Thị Bình", StudentClass: "AT17B"},
	}
	subjects := []score.Subject{
		{SubjectID: 1, SubjectName: "Toán cao cấp", SubjectCredits: 3},
		{SubjectID: 2, SubjectName: "Lập trình C", SubjectCredits: 4},
		{SubjectID: 3, SubjectName: "An toàn mạng", SubjectCredits: 3},
	}
	scores := []score.Score{
		{ScoreText: s("A"), ScoreOverall: f(8.5), Semester: "ki1-2024-2025", StudentCode: "CT050401", SubjectID: 1},
		{ScoreText: s("B+"), ScoreOverall: f(7.0), Semester: "ki1-2024-2025", StudentCode: "CT050401", SubjectID: 2},
		{ScoreText: s("A"), ScoreOverall: f(9.0), Semester: "ki2-2024-2025", StudentCode: "AT170233", SubjectID: 3},
	}
	return store.Seed(ctx, students, subjects, scores)
}
