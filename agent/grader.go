package agent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

// Grader 检索文档相关性评分器。输出二元 yes/no。
type Grader struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewGrader 创建评分器。
func NewGrader(provider llm.Provider, logger *zap.Logger) *Grader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grader{provider: provider, logger: logger}
}

// Grade 判断检索上下文是否与问题相关。
// LLM 失败或输出无法解析时按不相关处理,走改写路径。
func (g *Grader) Grade(ctx context.Context, question, context_ string) bool {
	resp, err := g.provider.Completion(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewUserMessage(formatGradePrompt(context_, question)),
		},
	})
	if err != nil {
		g.logger.Warn("grading call failed, treating as not relevant", zap.Error(err))
		return false
	}

	choice, err := llm.FirstChoice(resp)
	if err != nil {
		g.logger.Warn("empty grading response, treating as not relevant")
		return false
	}

	relevant, parseErr := parseBinaryScore(choice.Message.Content)
	if parseErr != nil {
		g.logger.Warn("grading output unparsable, treating as not relevant",
			zap.String("output", choice.Message.Content),
			zap.Error(llm.NewError(llm.ErrGradingParseFailure, parseErr.Error())))
		return false
	}
	return relevant
}

// parseBinaryScore 解析评分输出:优先 JSON {"binary_score":"yes"},
// 退化为文本前缀匹配。
func parseBinaryScore(output string) (bool, error) {
	trimmed := strings.TrimSpace(output)

	var structured struct {
		BinaryScore string `json:"binary_score"`
	}
	if err := json.Unmarshal([]byte(trimmed), &structured); err == nil && structured.BinaryScore != "" {
		return strings.EqualFold(structured.BinaryScore, "yes"), nil
	}

	lower := strings.ToLower(trimmed)
	lower = strings.Trim(lower, `"'.`)
	switch {
	case lower == "yes" || strings.HasPrefix(lower, "yes"):
		return true, nil
	case lower == "no" || strings.HasPrefix(lower, "no"):
		return false, nil
	}
	return false, llm.NewError(llm.ErrGradingParseFailure, "binary score not found in grader output")
}
