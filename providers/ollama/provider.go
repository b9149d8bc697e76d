// Package ollama 实现 Ollama 本地推理服务的 LLM Provider。
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

// Config Ollama 接入配置。
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OllamaProvider 实现 Ollama 原生 /api/chat 协议。
// 与 OpenAI 兼容层相比原生协议的差异:
// 1. 无鉴权头,本地服务直连
// 2. tool 参数直接传 JSON Schema,响应中 arguments 是对象而非字符串
// 3. 非流式响应是单个 JSON 对象,done 字段标记结束
type OllamaProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewOllamaProvider 创建 Ollama Provider。
func NewOllamaProvider(cfg Config, logger *zap.Logger) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second // 本地模型首个 token 可能很慢
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

// HealthCheck 探测 /api/tags,服务可达即视为健康。
func (p *OllamaProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/api/tags", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("ollama health check failed: status=%d", resp.StatusCode)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Ollama 原生消息结构。
type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"` // 固定 function
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       time.Time     `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

type ollamaErrorResp struct {
	Error string `json:"error"`
}

// convertMessages 将统一格式转为 Ollama 原生格式。
// Ollama 的 tool 结果消息不带调用 ID,按顺序对应。
func convertMessages(msgs []llm.Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, om)
	}
	return out
}

func convertTools(tools []llm.ToolSchema) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (p *OllamaProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	body := ollamaRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Tools:    convertTools(req.Tools),
		Stream:   false,
	}
	// ToolChoice=none 时不下发工具,Ollama 无对应参数
	if req.ToolChoice == "none" {
		body.Tools = nil
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/api/chat", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &llm.Error{
				Code:     llm.ErrUpstreamTimeout,
				Message:  err.Error(),
				Provider: p.Name(),
				Cause:    err,
			}
		}
		return nil, &llm.Error{
			Code:      llm.ErrProviderUnavailable,
			Message:   err.Error(),
			Retryable: true,
			Provider:  p.Name(),
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapOllamaError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}

	var or ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, &llm.Error{
			Code:      llm.ErrUpstreamError,
			Message:   fmt.Sprintf("decode ollama response: %v", err),
			Retryable: true,
			Provider:  p.Name(),
			Cause:     err,
		}
	}

	return toChatResponse(or, p.Name()), nil
}

// toChatResponse 转为统一响应。Ollama 不返回调用 ID,这里生成顺序 ID
// 供上层把工具结果对回调用。
func toChatResponse(or ollamaResponse, provider string) *llm.ChatResponse {
	msg := llm.Message{
		Role:    llm.RoleAssistant,
		Content: or.Message.Content,
	}
	for i, tc := range or.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	finish := or.DoneReason
	if finish == "" && or.Done {
		finish = "stop"
	}
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}

	return &llm.ChatResponse{
		Provider: provider,
		Model:    or.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: finish,
			Message:      msg,
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     or.PromptEvalCount,
			CompletionTokens: or.EvalCount,
			TotalTokens:      or.PromptEvalCount + or.EvalCount,
		},
		CreatedAt: or.CreatedAt,
	}
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var er ollamaErrorResp
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		return er.Error
	}
	return string(data)
}

func mapOllamaError(status int, msg, provider string) *llm.Error {
	switch status {
	case http.StatusNotFound:
		// 模型未拉取
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, Provider: provider}
	case http.StatusBadRequest:
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, Provider: provider}
	case http.StatusTooManyRequests:
		return &llm.Error{Code: llm.ErrRateLimited, Message: msg, Retryable: true, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &llm.Error{Code: llm.ErrProviderUnavailable, Message: msg, Retryable: true, Provider: provider}
	default:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, Retryable: status >= 500, Provider: provider}
	}
}
