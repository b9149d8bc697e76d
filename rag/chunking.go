package rag

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Chunk 检索单元：不可变的文档切片。
type Chunk struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	SourceID string `json:"source_id"`
}

// ChunkingConfig 分块配置。
type ChunkingConfig struct {
	ChunkSize    int      `json:"chunk_size" yaml:"chunk_size"`       // 块大小（字符）
	ChunkOverlap int      `json:"chunk_overlap" yaml:"chunk_overlap"` // 重叠大小（字符）
	Separators   []string `json:"separators" yaml:"separators"`       // 分隔符优先级
}

// DefaultChunkingConfig 返回默认分块配置。
// 400/200 为越南语规章文本调优的取值。
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    400,
		ChunkOverlap: 200,
		Separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// Chunker 递归字符分块器。
// 优先在段落/行/词边界切分，保持语义完整性。
type Chunker struct {
	config ChunkingConfig
	logger *zap.Logger
}

// NewChunker 创建分块器。
func NewChunker(config ChunkingConfig, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChunkSize <= 0 {
		config = DefaultChunkingConfig()
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultChunkingConfig().Separators
	}
	return &Chunker{config: config, logger: logger}
}

// Split 将文档文本切分为块。
func (c *Chunker) Split(sourceID, text string) []Chunk {
	pieces := c.recursiveSplit(text, c.config.Separators)
	pieces = c.mergeWithOverlap(pieces)

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s-%d", sourceID, i),
			Text:     piece,
			SourceID: sourceID,
		})
	}

	c.logger.Debug("document chunked",
		zap.String("source_id", sourceID),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// recursiveSplit 按分隔符优先级递归切分，直到每段不超过 ChunkSize。
func (c *Chunker) recursiveSplit(text string, separators []string) []string {
	if len([]rune(text)) <= c.config.ChunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return c.hardSplit(text)
	}

	sep := separators[0]
	rest := separators[1:]
	if sep == "" {
		return c.hardSplit(text)
	}

	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return c.recursiveSplit(text, rest)
	}

	var out []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

	for _, part := range parts {
		if len([]rune(part)) > c.config.ChunkSize {
			flush()
			out = append(out, c.recursiveSplit(part, rest)...)
			continue
		}
		candidate := part
		if current.Len() > 0 {
			candidate = current.String() + sep + part
		}
		if len([]rune(candidate)) > c.config.ChunkSize {
			flush()
			current.WriteString(part)
			continue
		}
		current.Reset()
		current.WriteString(candidate)
	}
	flush()
	return out
}

// hardSplit 无分隔符可用时按字符数强制切分。
func (c *Chunker) hardSplit(text string) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += c.config.ChunkSize {
		end := start + c.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// mergeWithOverlap 为相邻块添加尾部重叠，提升跨块召回。
func (c *Chunker) mergeWithOverlap(pieces []string) []string {
	if c.config.ChunkOverlap <= 0 || len(pieces) < 2 {
		return pieces
	}
	out := make([]string, len(pieces))
	out[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		prev := []rune(pieces[i-1])
		overlap := c.config.ChunkOverlap
		if overlap > len(prev) {
			overlap = len(prev)
		}
		tail := strings.TrimSpace(string(prev[len(prev)-overlap:]))
		if tail != "" {
			out[i] = tail + " " + pieces[i]
		} else {
			out[i] = pieces[i]
		}
	}
	return out
}
