package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
	"github.com/BaSui01/kmachat/tools"
)

// llmErrorReply 终止性 LLM 故障时给用户的回复。
const llmErrorReply = "Đã xảy ra lỗi khi xử lý câu hỏi của bạn. Vui lòng thử lại sau."

// Config 编排器配置。
type Config struct {
	// MaxRewrites 问题改写次数上限,超过后带现有上下文直接作答。
	MaxRewrites int
	// Model 透传给 Provider 的模型名,可为空。
	Model string
}

// DefaultConfig 返回默认编排配置。
func DefaultConfig() Config {
	return Config{MaxRewrites: 2}
}

// Orchestrator 会话编排器。每轮对话是一个有界的
// decide → dispatch → grade → {answer|rewrite} 循环。
type Orchestrator struct {
	provider     llm.Provider
	registry     *tools.Registry
	executor     *tools.Executor
	reformulator *Reformulator
	grader       *Grader
	config       Config
	logger       *zap.Logger
}

// New 创建编排器。
func New(provider llm.Provider, registry *tools.Registry, executor *tools.Executor, config Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRewrites <= 0 {
		config.MaxRewrites = DefaultConfig().MaxRewrites
	}
	return &Orchestrator{
		provider:     provider,
		registry:     registry,
		executor:     executor,
		reformulator: NewReformulator(provider, logger),
		grader:       NewGrader(provider, logger),
		config:       config,
		logger:       logger,
	}
}

// Run 处理一条用户消息。history 为既有对话(可为空)。
// 决策与检索都基于改写后的独立问题,指代消解的收益贯穿全程。
// 返回的状态要么终止(含回答),要么挂起等待用户补充输入。
func (o *Orchestrator) Run(ctx context.Context, history []llm.Message, userMsg string) (*State, error) {
	state := NewState()
	state.Messages = append(state.Messages, history...)

	state.Question = o.reformulator.Reformulate(ctx, history, userMsg)
	state.AddMessage(llm.NewUserMessage(state.Question))

	return o.loop(ctx, state)
}

// Resume 用用户补充的输入恢复挂起的会话。
func (o *Orchestrator) Resume(ctx context.Context, state *State, reply string) (*State, error) {
	if !state.AwaitingHumanInput {
		return nil, fmt.Errorf("state %s is not awaiting human input", state.ID)
	}
	if state.PendingToolCall == nil {
		return nil, fmt.Errorf("state %s has no pending tool call", state.ID)
	}

	code := strings.TrimSpace(reply)
	state.AddMessage(llm.NewUserMessage(reply))
	state.StudentCode = code

	// 把补充的学号写回挂起的调用参数
	args, err := injectArgument(state.PendingToolCall.Arguments, "student_code", code)
	if err != nil {
		return nil, fmt.Errorf("fill student_code into pending call: %w", err)
	}
	state.PendingToolCall.Arguments = args

	state.ResumeInput()
	state.Phase = PhaseDispatch
	return o.loop(ctx, state)
}

// loop 执行阶段机直到终止或挂起。步数上限保证循环有界:
// 每次改写至多引入一轮 decide+dispatch,再加固定的头尾开销。
func (o *Orchestrator) loop(ctx context.Context, state *State) (*State, error) {
	maxSteps := 4*(o.config.MaxRewrites+1) + 4

	for step := 0; step < maxSteps; step++ {
		o.logger.Debug("orchestrator step",
			zap.String("state_id", state.ID),
			zap.String("phase", string(state.Phase)),
			zap.Int("step", step))

		switch state.Phase {
		case PhaseDecide:
			o.stepDecide(ctx, state)
		case PhaseDispatch:
			o.stepDispatch(ctx, state)
		case PhaseGrade:
			o.stepGrade(ctx, state)
		case PhaseRewrite:
			o.stepRewrite(ctx, state)
		case PhaseAnswer:
			o.stepAnswer(ctx, state)
		case PhaseAwaitInput:
			return state, nil
		case PhaseDone:
			return state, nil
		default:
			return nil, fmt.Errorf("unknown phase %q", state.Phase)
		}

		if state.Phase == PhaseAwaitInput || state.Phase == PhaseDone {
			return state, nil
		}
	}

	// 防御性兜底,正常流程不会走到这里
	o.logger.Error("orchestrator step budget exhausted, forcing answer",
		zap.String("state_id", state.ID))
	o.stepAnswer(ctx, state)
	return state, nil
}

// stepDecide 让模型决定直接回答还是调用工具。
func (o *Orchestrator) stepDecide(ctx context.Context, state *State) {
	messages := make([]llm.Message, 0, len(state.Messages)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, state.Messages...)

	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model:      o.config.Model,
		Messages:   messages,
		Tools:      o.registry.List(),
		ToolChoice: "auto",
	})
	if err != nil {
		o.terminate(state, err)
		return
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		o.terminate(state, err)
		return
	}

	state.AddMessage(choice.Message)

	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		state.PendingToolCall = &call
		state.Phase = PhaseDispatch
		return
	}

	// 无工具调用即为直接回答
	state.Phase = PhaseDone
}

// stepDispatch 执行挂起的工具调用。
// 成绩类工具缺少学号时挂起会话等待用户补充。
func (o *Orchestrator) stepDispatch(ctx context.Context, state *State) {
	call := state.PendingToolCall
	if call == nil {
		state.Phase = PhaseDecide
		return
	}

	if containsField(o.registry.MissingRequired(call.Name, call.Arguments), "student_code") {
		if state.StudentCode != "" {
			if args, err := injectArgument(call.Arguments, "student_code", state.StudentCode); err == nil {
				call.Arguments = args
			}
		}
		if containsField(o.registry.MissingRequired(call.Name, call.Arguments), "student_code") {
			o.logger.Info("suspending for student code",
				zap.String("state_id", state.ID),
				zap.String("tool", call.Name))
			state.Suspend(studentCodePrompt, call)
			return
		}
	}

	result := o.executor.ExecuteOne(ctx, *call)
	state.PendingToolCall = nil

	if result.IsError() {
		// 工具失败写回工具消息,对话继续
		state.AddMessage(llm.NewToolMessage(call.ID, call.Name, fmt.Sprintf("Error: %s", result.Error)))
		if call.Name == tools.RetrievalToolName {
			state.Context = ""
			state.Phase = PhaseGrade
			return
		}
		state.Phase = PhaseDecide
		return
	}

	state.AddMessage(llm.NewToolMessage(call.ID, call.Name, string(result.Result)))
	rememberStudentCode(state, call)

	if call.Name == tools.RetrievalToolName {
		var out tools.RetrievalOutput
		if err := json.Unmarshal(result.Result, &out); err == nil {
			state.Context = tools.JoinDocuments(out.Documents)
		}
		state.Phase = PhaseGrade
		return
	}

	// 其它工具的结果交还模型继续推理
	state.Phase = PhaseDecide
}

// stepGrade 评估检索上下文与问题的相关性。
// 零命中不问模型:没有证据就不可能相关,直接进改写。
func (o *Orchestrator) stepGrade(ctx context.Context, state *State) {
	if state.Context == "" {
		state.Phase = PhaseRewrite
		return
	}
	if o.grader.Grade(ctx, state.Question, state.Context) {
		state.Phase = PhaseAnswer
		return
	}
	state.Phase = PhaseRewrite
}

// stepRewrite 改写问题后重新决策;达到上限则带现有上下文作答。
func (o *Orchestrator) stepRewrite(ctx context.Context, state *State) {
	if state.RewriteCount >= o.config.MaxRewrites {
		o.logger.Info("rewrite budget reached, answering with available context",
			zap.String("state_id", state.ID),
			zap.Int("rewrites", state.RewriteCount))
		state.Phase = PhaseAnswer
		return
	}
	state.RewriteCount++

	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model: o.config.Model,
		Messages: []llm.Message{
			llm.NewUserMessage(formatRewritePrompt(state.Question)),
		},
	})
	if err != nil {
		o.terminate(state, err)
		return
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		o.terminate(state, err)
		return
	}

	improved := strings.TrimSpace(choice.Message.Content)
	if improved != "" {
		state.Question = improved
		state.AddMessage(llm.NewUserMessage(improved))
	}
	state.Phase = PhaseDecide
}

// stepAnswer 基于问题与检索上下文生成最终回答。
func (o *Orchestrator) stepAnswer(ctx context.Context, state *State) {
	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model: o.config.Model,
		Messages: []llm.Message{
			llm.NewUserMessage(formatGeneratePrompt(state.Question, state.Context)),
		},
	})
	if err != nil {
		o.terminate(state, err)
		return
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		o.terminate(state, err)
		return
	}

	state.AddMessage(llm.NewAssistantMessage(choice.Message.Content))
	state.Phase = PhaseDone
}

// terminate LLM 故障时以错误回复终止本轮。
func (o *Orchestrator) terminate(state *State, cause error) {
	o.logger.Error("llm call failed, terminating turn",
		zap.String("state_id", state.ID),
		zap.String("phase", string(state.Phase)),
		zap.Error(cause))
	state.AddMessage(llm.NewAssistantMessage(llmErrorReply))
	state.Phase = PhaseDone
}

// rememberStudentCode 记住调用参数里的学号供后续工具复用。
func rememberStudentCode(state *State, call *llm.ToolCall) {
	var args struct {
		StudentCode string `json:"student_code"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err == nil && args.StudentCode != "" {
		state.StudentCode = args.StudentCode
	}
}

// injectArgument 向调用参数写入一个字段。
func injectArgument(args json.RawMessage, field, value string) (json.RawMessage, error) {
	parsed := map[string]interface{}{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return nil, err
		}
	}
	parsed[field] = value
	return json.Marshal(parsed)
}

// containsField reports whether fields contains name.
func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
