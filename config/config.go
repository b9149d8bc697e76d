package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig LLM 接入配置。
type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig 向量化配置。
type EmbeddingConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// IndexConfig 检索索引配置。
type IndexConfig struct {
	Dir          string `yaml:"dir"`      // 索引文件目录
	DataDir      string `yaml:"data_dir"` // 原始规章文本目录
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
}

// AgentConfig 编排配置。
type AgentConfig struct {
	MaxRewrites int           `yaml:"max_rewrites"`
	StateTTL    time.Duration `yaml:"state_ttl"`
}

// RateLimitConfig 限流配置。PolicyFile 为空时用内置默认策略。
type RateLimitConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PolicyFile string `yaml:"policy_file"`
}

// StorageConfig 外部存储配置。Redis/Mongo 为空时用进程内实现。
type StorageConfig struct {
	ScoreDB  string `yaml:"score_db"`
	RedisURL string `yaml:"redis_url"`
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
}

// Config 应用配置。
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Agent     AgentConfig     `yaml:"agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	LogLevel  string          `yaml:"log_level"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
			Timeout: 120 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
			Timeout: 60 * time.Second,
		},
		Index: IndexConfig{
			Dir:          "index",
			DataDir:      "data",
			ChunkSize:    400,
			ChunkOverlap: 200,
			TopK:         15,
		},
		Agent: AgentConfig{
			MaxRewrites: 2,
			StateTTL:    24 * time.Hour,
		},
		RateLimit: RateLimitConfig{Enabled: true},
		Storage:   StorageConfig{ScoreDB: "kmachat.db", MongoDB: "kmachat"},
		LogLevel:  "info",
	}
}

// Load 读取 YAML 配置并套用环境变量覆盖。
// path 为空或文件不存在时直接用默认配置。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖,变量名 KMACHAT_ 前缀。
func applyEnv(cfg *Config) {
	if v := os.Getenv("KMACHAT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("KMACHAT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("KMACHAT_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("KMACHAT_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("KMACHAT_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("KMACHAT_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("KMACHAT_SCORE_DB"); v != "" {
		cfg.Storage.ScoreDB = v
	}
	if v := os.Getenv("KMACHAT_REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("KMACHAT_MONGO_URI"); v != "" {
		cfg.Storage.MongoURI = v
	}
	if v := os.Getenv("KMACHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KMACHAT_MAX_REWRITES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxRewrites = n
		}
	}
}

// Validate 校验配置取值。
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("index.top_k must be positive, got %d", c.Index.TopK)
	}
	if c.Agent.MaxRewrites < 0 {
		return fmt.Errorf("agent.max_rewrites must not be negative, got %d", c.Agent.MaxRewrites)
	}
	return nil
}
