package rag

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// VectorIndex 基于余弦相似度的最近邻索引。
// 构建完成后不可变，可被并发读取。
type VectorIndex struct {
	chunks     []Chunk
	embeddings [][]float64
	embedder   Embedder
	logger     *zap.Logger
}

// BuildVectorIndex 从已有向量构建索引。向量与分块一一对应。
func BuildVectorIndex(chunks []Chunk, embeddings [][]float64, embedder Embedder, logger *zap.Logger) (*VectorIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	idx := &VectorIndex{
		chunks:     chunks,
		embeddings: embeddings,
		embedder:   embedder,
		logger:     logger,
	}

	logger.Info("vector index built", zap.Int("chunks", len(chunks)))
	return idx, nil
}

// Search 嵌入查询并返回余弦相似度最高的前 k 个块。只读，无副作用。
func (idx *VectorIndex) Search(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 || len(idx.chunks) == 0 {
		return nil, nil
	}

	vecs, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := vecs[0]

	results := make([]ScoredChunk, 0, len(idx.chunks))
	for i, emb := range idx.embeddings {
		results = append(results, ScoredChunk{
			Chunk:  idx.chunks[i],
			Score:  cosineSimilarity(queryVec, emb),
			Origin: OriginVector,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Chunk.ID < results[j].Chunk.ID
		}
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Size 索引中的块数。
func (idx *VectorIndex) Size() int { return len(idx.chunks) }

// cosineSimilarity 计算余弦相似度，维度不匹配或零向量时返回 0。
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
