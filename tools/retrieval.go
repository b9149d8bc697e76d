package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/BaSui01/kmachat/llm"
	"github.com/BaSui01/kmachat/rag"
)

// RetrievalToolName 规章检索工具名,DISPATCH 后进入 GRADE 阶段的唯一工具。
const RetrievalToolName = "kma_regulation_retriever"

// Retriever 检索接口,由 rag.HybridRetriever 实现。
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]rag.Chunk, error)
}

// RetrievalOutput 检索工具的输出负载。
type RetrievalOutput struct {
	Documents []string `json:"documents"`
	Message   string   `json:"message"`
}

// retrievalInput 检索工具参数。
type retrievalInput struct {
	Query string `json:"query"`
}

var retrievalSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Search query about KMA regulations, tuition, admission or training rules"}
	},
	"required": ["query"]
}`)

// RegisterRetrieval 注册规章检索工具。
func RegisterRetrieval(reg *Registry, retriever Retriever, topK int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var input retrievalInput
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("parse retrieval arguments: %w", err)
		}

		// 越南语输入的 Unicode 组合形式不统一,检索前归一为 NFC
		query := norm.NFC.String(strings.TrimSpace(input.Query))

		chunks, err := retriever.Retrieve(ctx, query, topK)
		if err != nil {
			return nil, err
		}

		out := RetrievalOutput{Documents: make([]string, 0, len(chunks))}
		for _, c := range chunks {
			out.Documents = append(out.Documents, c.Text)
		}
		if len(out.Documents) == 0 {
			out.Message = "No relevant documents found"
		} else {
			out.Message = fmt.Sprintf("Found %d relevant documents", len(out.Documents))
		}

		logger.Debug("regulation retrieval",
			zap.String("query", query),
			zap.Int("documents", len(out.Documents)))
		return json.Marshal(out)
	}

	return reg.Register(RetrievalToolName, fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name: RetrievalToolName,
			Description: "Search KMA (Học viện Kỹ thuật Mật mã) regulation documents: " +
				"training rules, tuition fees, admission, exams and student affairs. " +
				"Use for any question about academy rules and policies.",
			Parameters: retrievalSchema,
		},
		Timeout: 30 * time.Second,
	})
}

// JoinDocuments 将检索文档拼为单段上下文文本。
func JoinDocuments(docs []string) string {
	return strings.Join(docs, "\n\n")
}
