package rag

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ScoredChunk 单个检索命中及其来源。
type ScoredChunk struct {
	Chunk  Chunk   `json:"chunk"`
	Score  float64 `json:"score"`
	Origin string  `json:"origin"` // lexical | vector
}

const (
	OriginLexical = "lexical"
	OriginVector  = "vector"
)

// LexicalConfig BM25 参数。
type LexicalConfig struct {
	K1 float64 `json:"k1" yaml:"k1"` // 词频饱和（1.2-2.0）
	B  float64 `json:"b" yaml:"b"`   // 长度归一化（0.75）
}

// DefaultLexicalConfig 返回默认 BM25 参数。
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{K1: 1.5, B: 0.75}
}

type posting struct {
	docIdx int
	tf     int
}

// LexicalIndex 基于倒排表的 BM25 关键词索引。
// 构建完成后不可变，可被并发读取。
type LexicalIndex struct {
	config    LexicalConfig
	chunks    []Chunk
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
	postings  map[string][]posting
}

// BuildLexicalIndex 从分块构建倒排索引。
// 构建是一次性的维护操作；调用方负责在完成后整体替换旧索引。
func BuildLexicalIndex(config LexicalConfig, chunks []Chunk, logger *zap.Logger) *LexicalIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.K1 == 0 {
		config = DefaultLexicalConfig()
	}

	idx := &LexicalIndex{
		config:   config,
		chunks:   chunks,
		docLens:  make([]int, len(chunks)),
		idf:      make(map[string]float64),
		postings: make(map[string][]posting),
	}

	totalLen := 0
	for i, chunk := range chunks {
		terms := tokenize(chunk.Text)
		idx.docLens[i] = len(terms)
		totalLen += len(terms)

		termFreq := make(map[string]int, len(terms))
		for _, term := range terms {
			termFreq[term]++
		}
		for term, tf := range termFreq {
			idx.postings[term] = append(idx.postings[term], posting{docIdx: i, tf: tf})
		}
	}

	if len(chunks) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(chunks))
	}

	n := float64(len(chunks))
	for term, plist := range idx.postings {
		df := float64(len(plist))
		idx.idf[term] = math.Log((n-df+0.5)/(df+0.5) + 1.0)
	}

	logger.Info("lexical index built",
		zap.Int("chunks", len(chunks)),
		zap.Int("terms", len(idx.postings)))

	return idx
}

// Search 返回按 BM25 分数降序的前 k 个块。只读，无副作用。
func (idx *LexicalIndex) Search(query string, k int) []ScoredChunk {
	if k <= 0 || len(idx.chunks) == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for _, term := range tokenize(query) {
		plist, ok := idx.postings[term]
		if !ok {
			continue
		}
		termIDF := idx.idf[term]
		for _, p := range plist {
			docLen := float64(idx.docLens[p.docIdx])
			tf := float64(p.tf)
			numerator := tf * (idx.config.K1 + 1.0)
			denominator := tf + idx.config.K1*(1.0-idx.config.B+idx.config.B*(docLen/idx.avgDocLen))
			scores[p.docIdx] += termIDF * (numerator / denominator)
		}
	}

	results := make([]ScoredChunk, 0, len(scores))
	for docIdx, score := range scores {
		if score <= 0 {
			continue
		}
		results = append(results, ScoredChunk{
			Chunk:  idx.chunks[docIdx],
			Score:  score,
			Origin: OriginLexical,
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
	return results
}

// Size 索引中的块数。
func (idx *LexicalIndex) Size() int { return len(idx.chunks) }

// tokenize 分词：转小写并按空白分割。
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
