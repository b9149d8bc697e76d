package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/rag"
)

// runReindex 从原始文档目录重建索引并落盘。
func runReindex(args []string) {
	cfg := loadConfig("reindex", args)
	logger := buildLogger(cfg.LogLevel)
	defer logger.Sync()

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

	if _, _, err := store.Rebuild(context.Background(), cfg.Index.DataDir); err != nil {
		logger.Error("reindex failed", zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("Index rebuilt into %s\n", cfg.Index.Dir)
}
