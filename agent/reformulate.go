package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

// Reformulator 将依赖上下文的追问改写为独立问题。
// 失败时放行原问题,不中断对话。
type Reformulator struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewReformulator 创建问题改写器。
func NewReformulator(provider llm.Provider, logger *zap.Logger) *Reformulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reformulator{provider: provider, logger: logger}
}

// Reformulate 基于历史改写最新问题。历史为空时原样返回,不调用 LLM。
func (r *Reformulator) Reformulate(ctx context.Context, history []llm.Message, question string) string {
	rendered := renderHistory(history)
	if len(rendered) == 0 {
		return question
	}

	resp, err := r.provider.Completion(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewUserMessage(formatReformulatePrompt(rendered, question)),
		},
	})
	if err != nil {
		r.logger.Warn("reformulation failed, using original question", zap.Error(err))
		return question
	}

	choice, err := llm.FirstChoice(resp)
	if err != nil || strings.TrimSpace(choice.Message.Content) == "" {
		r.logger.Warn("empty reformulation, using original question")
		return question
	}

	standalone := strings.TrimSpace(choice.Message.Content)
	r.logger.Debug("question reformulated",
		zap.String("original", question),
		zap.String("standalone", standalone))
	return standalone
}

// renderHistory 渲染 [bot]/[user] 前缀的历史文本。工具消息不进入改写上下文。
func renderHistory(history []llm.Message) []string {
	var out []string
	for _, msg := range history {
		switch msg.Role {
		case llm.RoleAssistant:
			if msg.Content != "" {
				out = append(out, "[bot] "+msg.Content)
			}
		case llm.RoleUser:
			out = append(out, "[user] "+msg.Content)
		}
	}
	return out
}
