package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

func echoTool(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	if err := reg.Register("echo", echoTool, ToolMetadata{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register("echo", echoTool, ToolMetadata{}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistry_MissingRequired(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	schema := json.RawMessage(`{"type":"object","properties":{"student_code":{"type":"string"}},"required":["student_code"]}`)
	err := reg.Register("lookup", echoTool, ToolMetadata{Schema: llm.ToolSchema{Parameters: schema}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		args    string
		missing bool
	}{
		{`{"student_code":"CT050401"}`, false},
		{`{"student_code":""}`, true},
		{`{"student_code":null}`, true},
		{`{}`, true},
		{``, true},
	}
	for _, tc := range cases {
		got := reg.MissingRequired("lookup", json.RawMessage(tc.args))
		if (len(got) > 0) != tc.missing {
			t.Fatalf("args %q: missing=%v, want %v", tc.args, got, tc.missing)
		}
	}
}

func TestExecutor_MissingArgumentBecomesToolError(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	schema := json.RawMessage(`{"type":"object","required":["student_code"]}`)
	if err := reg.Register("lookup", echoTool, ToolMetadata{Schema: llm.ToolSchema{Parameters: schema}}); err != nil {
		t.Fatal(err)
	}

	exec := NewExecutor(reg, zap.NewNop())
	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "1", Name: "lookup", Arguments: json.RawMessage(`{}`)})
	if !result.IsError() {
		t.Fatal("expected tool error for missing required argument")
	}
	if !strings.Contains(result.Error, "student_code") {
		t.Fatalf("error does not name missing field: %s", result.Error)
	}
}

func TestExecutor_UnknownToolBecomesToolError(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(NewRegistry(zap.NewNop()), zap.NewNop())
	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "1", Name: "nope"})
	if !result.IsError() {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecutor_TimeoutBecomesToolError(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	slow := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(time.Second):
			return json.RawMessage(`{}`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := reg.Register("slow", slow, ToolMetadata{Timeout: 20 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}

	exec := NewExecutor(reg, zap.NewNop())
	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "1", Name: "slow"})
	if !result.IsError() {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(result.Error, "timeout") {
		t.Fatalf("unexpected error: %s", result.Error)
	}
}

func TestExecutor_SuccessCarriesResult(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	if err := reg.Register("echo", echoTool, ToolMetadata{}); err != nil {
		t.Fatal(err)
	}

	exec := NewExecutor(reg, zap.NewNop())
	result := exec.ExecuteOne(context.Background(), llm.ToolCall{
		ID: "1", Name: "echo", Arguments: json.RawMessage(`{"x":1}`),
	})
	if result.IsError() {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if string(result.Result) != `{"x":1}` {
		t.Fatalf("unexpected result: %s", result.Result)
	}
}
