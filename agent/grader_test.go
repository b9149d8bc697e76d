package agent

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

func TestParseBinaryScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		output   string
		relevant bool
		parseErr bool
	}{
		{`{"binary_score": "yes"}`, true, false},
		{`{"binary_score": "no"}`, false, false},
		{`{"binary_score": "YES"}`, true, false},
		{"yes", true, false},
		{"Yes.", true, false},
		{"no", false, false},
		{"No, the document is unrelated", false, false},
		{"maybe", false, true},
		{"", false, true},
		{`{"verdict": "relevant"}`, false, true},
	}
	for _, tc := range cases {
		got, err := parseBinaryScore(tc.output)
		if (err != nil) != tc.parseErr {
			t.Fatalf("output %q: parse error = %v, want error %v", tc.output, err, tc.parseErr)
		}
		if got != tc.relevant {
			t.Fatalf("output %q: relevant = %v, want %v", tc.output, got, tc.relevant)
		}
	}
}

func TestGrader_ParseFailureMeansNotRelevant(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scriptedStep{
		text("I think it might be relevant, hard to say"),
	}}
	g := NewGrader(provider, zap.NewNop())
	if g.Grade(context.Background(), "học phí?", "tài liệu") {
		t.Fatal("unparsable grade must be treated as not relevant")
	}
}

func TestGrader_LLMFailureMeansNotRelevant(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scriptedStep{
		fail(llm.NewError(llm.ErrUpstreamTimeout, "timeout")),
	}}
	g := NewGrader(provider, zap.NewNop())
	if g.Grade(context.Background(), "học phí?", "tài liệu") {
		t.Fatal("grading failure must fall back to not relevant")
	}
}

func TestReformulator_EmptyHistorySkipsLLM(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{} // 任何调用都会失败
	r := NewReformulator(provider, zap.NewNop())

	got := r.Reformulate(context.Background(), nil, "Học phí bao nhiêu?")
	if got != "Học phí bao nhiêu?" {
		t.Fatalf("question changed without history: %q", got)
	}
	if len(provider.requests) != 0 {
		t.Fatalf("expected no LLM calls, got %d", len(provider.requests))
	}
}

func TestReformulator_FailureFallsOpen(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scriptedStep{
		fail(llm.NewError(llm.ErrUpstreamError, "down")),
	}}
	r := NewReformulator(provider, zap.NewNop())

	history := []llm.Message{llm.NewUserMessage("trước đó")}
	got := r.Reformulate(context.Background(), history, "Thế còn học phí?")
	if got != "Thế còn học phí?" {
		t.Fatalf("expected original question on failure, got %q", got)
	}
}
