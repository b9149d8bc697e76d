package rag

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reranker 对合并后的候选块重新打分并截断。可选能力。
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []Chunk, topK int) ([]Chunk, error)
}

// HybridConfig 混合检索配置。
type HybridConfig struct {
	TopK          int `json:"top_k" yaml:"top_k"`                   // 每个子索引的召回数
	RerankCeiling int `json:"rerank_ceiling" yaml:"rerank_ceiling"` // 重排前候选上限（默认 2*TopK）
}

// DefaultHybridConfig 返回默认混合检索配置。
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{TopK: 15}
}

// indexPair 一次构建产出的一对索引，整体替换，杜绝半构建状态。
type indexPair struct {
	lexical *LexicalIndex
	vector  *VectorIndex
}

// HybridRetriever 融合词法与向量检索。
// 向量结果优先的首见去重合并；配置了 Reranker 时对合并集重排。
type HybridRetriever struct {
	config   HybridConfig
	indexes  atomic.Pointer[indexPair]
	reranker Reranker
	logger   *zap.Logger
}

// NewHybridRetriever 创建混合检索器。reranker 可为 nil。
func NewHybridRetriever(config HybridConfig, reranker Reranker, logger *zap.Logger) *HybridRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TopK <= 0 {
		config.TopK = DefaultHybridConfig().TopK
	}
	return &HybridRetriever{
		config:   config,
		reranker: reranker,
		logger:   logger.With(zap.String("component", "hybrid_retriever")),
	}
}

// SetIndexes 原子替换当前索引对。
// 构建方必须在两个索引都完成后才调用，读者不会观察到半构建索引。
func (r *HybridRetriever) SetIndexes(lexical *LexicalIndex, vector *VectorIndex) {
	r.indexes.Store(&indexPair{lexical: lexical, vector: vector})
}

// Ready 当前是否持有可服务的索引。
func (r *HybridRetriever) Ready() bool {
	return r.indexes.Load() != nil
}

// Retrieve 混合检索：两个子索引各自独立召回，向量结果优先合并去重。
// 两边都为空时返回空切片而非错误；调用方（评分环节）视空检索为不相关。
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) ([]Chunk, error) {
	pair := r.indexes.Load()
	if pair == nil {
		r.logger.Warn("retrieve called before index is available")
		return []Chunk{}, nil
	}
	if k <= 0 {
		k = r.config.TopK
	}

	var vectorResults, lexicalResults []ScoredChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := pair.vector.Search(gctx, query, k)
		if err != nil {
			// 向量侧失败降级为纯词法检索
			r.logger.Warn("vector search failed, falling back to lexical only", zap.Error(err))
			return nil
		}
		vectorResults = results
		return nil
	})
	g.Go(func() error {
		lexicalResults = pair.lexical.Search(query, k)
		return nil
	})
	_ = g.Wait()

	merged := fuseFirstSeen(vectorResults, lexicalResults)

	if r.reranker != nil && len(merged) > 0 {
		ceiling := r.config.RerankCeiling
		if ceiling <= 0 {
			ceiling = 2 * k
		}
		if len(merged) > ceiling {
			merged = merged[:ceiling]
		}
		reranked, err := r.reranker.Rerank(ctx, query, merged, k)
		if err != nil {
			// 重排不可用时回退为未加权合并结果
			r.logger.Warn("rerank failed, returning fused results", zap.Error(err))
			return merged, nil
		}
		if len(reranked) > k {
			reranked = reranked[:k]
		}
		return reranked, nil
	}

	r.logger.Debug("hybrid retrieve",
		zap.Int("vector", len(vectorResults)),
		zap.Int("lexical", len(lexicalResults)),
		zap.Int("fused", len(merged)))

	return merged, nil
}

// fuseFirstSeen 首见去重合并：先遍历向量结果再遍历词法结果，
// 同一文本只保留第一次出现，保证向量优先且输出无重复内容。
func fuseFirstSeen(vector, lexical []ScoredChunk) []Chunk {
	seen := make(map[string]struct{}, len(vector)+len(lexical))
	out := make([]Chunk, 0, len(vector)+len(lexical))
	for _, list := range [][]ScoredChunk{vector, lexical} {
		for _, sc := range list {
			if _, ok := seen[sc.Chunk.Text]; ok {
				continue
			}
			seen[sc.Chunk.Text] = struct{}{}
			out = append(out, sc.Chunk)
		}
	}
	return out
}
