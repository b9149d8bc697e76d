package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

const (
	chunksFile  = "chunks.json"
	vectorsFile = "vectors.json"
)

// IndexStore 负责索引的持久化：分块文本与对应向量落盘到一个目录。
type IndexStore struct {
	dir      string
	chunker  *Chunker
	embedder Embedder
	lexical  LexicalConfig
	logger   *zap.Logger
}

// NewIndexStore 创建索引存储。
func NewIndexStore(dir string, chunker *Chunker, embedder Embedder, lexical LexicalConfig, logger *zap.Logger) *IndexStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexStore{
		dir:      dir,
		chunker:  chunker,
		embedder: embedder,
		lexical:  lexical,
		logger:   logger.With(zap.String("component", "index_store")),
	}
}

// Load 从目录加载持久化索引并构建索引对。
// 目录缺失或内容损坏时快速失败并返回描述性错误，调用方应走重建路径。
func (s *IndexStore) Load() (*LexicalIndex, *VectorIndex, error) {
	chunksPath := filepath.Join(s.dir, chunksFile)
	vectorsPath := filepath.Join(s.dir, vectorsFile)

	chunksRaw, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, nil, llm.NewError(llm.ErrRetrievalUnavailable,
			fmt.Sprintf("index directory %s is missing or unreadable", s.dir)).WithCause(err)
	}
	vectorsRaw, err := os.ReadFile(vectorsPath)
	if err != nil {
		return nil, nil, llm.NewError(llm.ErrRetrievalUnavailable,
			fmt.Sprintf("vector file %s is missing or unreadable", vectorsPath)).WithCause(err)
	}

	var chunks []Chunk
	if err := json.Unmarshal(chunksRaw, &chunks); err != nil {
		return nil, nil, llm.NewError(llm.ErrRetrievalUnavailable,
			fmt.Sprintf("chunk file %s is corrupt", chunksPath)).WithCause(err)
	}
	var embeddings [][]float64
	if err := json.Unmarshal(vectorsRaw, &embeddings); err != nil {
		return nil, nil, llm.NewError(llm.ErrRetrievalUnavailable,
			fmt.Sprintf("vector file %s is corrupt", vectorsPath)).WithCause(err)
	}
	if len(chunks) != len(embeddings) {
		return nil, nil, llm.NewError(llm.ErrRetrievalUnavailable,
			fmt.Sprintf("index %s inconsistent: %d chunks vs %d vectors", s.dir, len(chunks), len(embeddings)))
	}

	lexical := BuildLexicalIndex(s.lexical, chunks, s.logger)
	vector, err := BuildVectorIndex(chunks, embeddings, s.embedder, s.logger)
	if err != nil {
		return nil, nil, llm.NewError(llm.ErrRetrievalUnavailable, "vector index build failed").WithCause(err)
	}

	s.logger.Info("index loaded", zap.String("dir", s.dir), zap.Int("chunks", len(chunks)))
	return lexical, vector, nil
}

// Rebuild 从原始文档目录重建索引：读取所有 .txt，分块，嵌入，落盘。
// 全部完成后才返回新索引对，调用方通过 SetIndexes 整体替换。
func (s *IndexStore) Rebuild(ctx context.Context, dataDir string) (*LexicalIndex, *VectorIndex, error) {
	docs, err := readTextFiles(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read data directory %s: %w", dataDir, err)
	}
	if len(docs) == 0 {
		return nil, nil, fmt.Errorf("no .txt documents found in %s", dataDir)
	}

	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.chunker.Split(doc.sourceID, doc.text)...)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}

	if err := s.save(chunks, embeddings); err != nil {
		return nil, nil, err
	}

	lexical := BuildLexicalIndex(s.lexical, chunks, s.logger)
	vector, err := BuildVectorIndex(chunks, embeddings, s.embedder, s.logger)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("index rebuilt",
		zap.String("data_dir", dataDir),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)))

	return lexical, vector, nil
}

// save 原子落盘：先写临时文件再重命名。
func (s *IndexStore) save(chunks []Chunk, embeddings [][]float64) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index directory %s: %w", s.dir, err)
	}

	write := func(name string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		tmp := filepath.Join(s.dir, name+".tmp")
		if err := os.WriteFile(tmp, raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", tmp, err)
		}
		return os.Rename(tmp, filepath.Join(s.dir, name))
	}

	if err := write(chunksFile, chunks); err != nil {
		return err
	}
	return write(vectorsFile, embeddings)
}

type rawDocument struct {
	sourceID string
	text     string
}

// readTextFiles 读取目录下全部 .txt 文件，按文件名排序保证分块 ID 稳定。
func readTextFiles(dataDir string) ([]rawDocument, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	var docs []rawDocument
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dataDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		docs = append(docs, rawDocument{
			sourceID: strings.TrimSuffix(entry.Name(), ".txt"),
			text:     string(raw),
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].sourceID < docs[j].sourceID })
	return docs, nil
}
