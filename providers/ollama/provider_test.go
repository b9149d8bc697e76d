package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaProvider(Config{BaseURL: srv.URL, Model: "llama3.2"}, zap.NewNop())
}

func TestCompletion_TextResponse(t *testing.T) {
	t.Parallel()

	var gotReq ollamaRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3.2",
			Message:         ollamaMessage{Role: "assistant", Content: "xin chào"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 12,
			EvalCount:       5,
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("chào bạn")},
	})
	require.NoError(t, err)

	assert.False(t, gotReq.Stream)
	assert.Equal(t, "llama3.2", gotReq.Model)

	choice, err := llm.FirstChoice(resp)
	require.NoError(t, err)
	assert.Equal(t, "xin chào", choice.Message.Content)
	assert.Equal(t, "stop", choice.FinishReason)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
}

func TestCompletion_ToolCall(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{
			Model: "llama3.2",
			Message: ollamaMessage{
				Role: "assistant",
				ToolCalls: []ollamaToolCall{{
					Function: ollamaFunctionCall{
						Name:      "get_student_scores",
						Arguments: json.RawMessage(`{"student_code":"CT050401"}`),
					},
				}},
			},
			Done: true,
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("điểm của tôi")},
		Tools: []llm.ToolSchema{{
			Name:       "get_student_scores",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	choice, err := llm.FirstChoice(resp)
	require.NoError(t, err)
	require.Len(t, choice.Message.ToolCalls, 1)
	tc := choice.Message.ToolCalls[0]
	assert.Equal(t, "call_0", tc.ID)
	assert.Equal(t, "get_student_scores", tc.Name)
	assert.JSONEq(t, `{"student_code":"CT050401"}`, string(tc.Arguments))
	assert.Equal(t, "tool_calls", choice.FinishReason)
}

func TestCompletion_ToolChoiceNoneStripsTools(t *testing.T) {
	t.Parallel()

	var gotReq ollamaRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(ollamaResponse{Message: ollamaMessage{Role: "assistant", Content: "ok"}, Done: true})
	})

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:   []llm.Message{llm.NewUserMessage("hi")},
		Tools:      []llm.ToolSchema{{Name: "t", Parameters: json.RawMessage(`{}`)}},
		ToolChoice: "none",
	})
	require.NoError(t, err)
	assert.Empty(t, gotReq.Tools)
}

func TestCompletion_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{"model not found", http.StatusNotFound, llm.ErrInvalidRequest, false},
		{"bad request", http.StatusBadRequest, llm.ErrInvalidRequest, false},
		{"rate limited", http.StatusTooManyRequests, llm.ErrRateLimited, true},
		{"unavailable", http.StatusServiceUnavailable, llm.ErrProviderUnavailable, true},
		{"server error", http.StatusInternalServerError, llm.ErrUpstreamError, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(ollamaErrorResp{Error: "boom"})
			})

			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{llm.NewUserMessage("hi")},
			})
			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tc.wantCode, llmErr.Code)
			assert.Equal(t, tc.retryable, llmErr.Retryable)
			assert.Equal(t, "boom", llmErr.Message)
		})
	}
}

func TestCompletion_ConnectionRefused(t *testing.T) {
	t.Parallel()

	p := NewOllamaProvider(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrProviderUnavailable, llmErr.Code)
	assert.True(t, llmErr.Retryable)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	bad := NewOllamaProvider(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	status, err = bad.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}

func TestConvertMessages_ToolRoundTrip(t *testing.T) {
	t.Parallel()

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "persona"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
			ID: "call_0", Name: "t", Arguments: json.RawMessage(`{"q":"x"}`),
		}}},
		llm.NewToolMessage("call_0", "t", `{"documents":[]}`),
	}
	out := convertMessages(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "system", out[0].Role)
	require.Len(t, out[1].ToolCalls, 1)
	assert.Equal(t, "t", out[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", out[2].Role)
}
