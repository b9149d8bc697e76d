package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/kmachat/llm"
)

// Phase 编排阶段。
type Phase string

const (
	PhaseDecide     Phase = "decide"
	PhaseDispatch   Phase = "dispatch_tool"
	PhaseGrade      Phase = "grade"
	PhaseRewrite    Phase = "rewrite"
	PhaseAnswer     Phase = "answer"
	PhaseAwaitInput Phase = "await_input"
	PhaseDone       Phase = "done"
)

// State 会话状态。JSON 可序列化,挂起后可跨进程恢复。
type State struct {
	ID       string        `json:"id"`
	Messages []llm.Message `json:"messages"`

	// Question 当前待回答的问题,改写后更新。
	Question string `json:"question"`
	// Context 最近一次检索得到的上下文文本。
	Context string `json:"context,omitempty"`

	StudentCode string `json:"student_code,omitempty"`

	// Human-in-the-loop 挂起控制。
	AwaitingHumanInput bool          `json:"awaiting_human_input"`
	HumanInputPrompt   string        `json:"human_input_prompt,omitempty"`
	PendingToolCall    *llm.ToolCall `json:"pending_tool_call,omitempty"`

	RewriteCount int   `json:"rewrite_count"`
	Phase        Phase `json:"phase"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState 创建新会话状态。
func NewState() *State {
	now := time.Now().UTC()
	return &State{
		ID:        uuid.NewString(),
		Phase:     PhaseDecide,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage 追加一条消息。消息序列只增不改。
func (s *State) AddMessage(msg llm.Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
}

// LastMessage 返回最后一条消息,空时返回 nil。
func (s *State) LastMessage() *llm.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// Suspend 挂起等待用户补充输入。
func (s *State) Suspend(prompt string, pending *llm.ToolCall) {
	s.AwaitingHumanInput = true
	s.HumanInputPrompt = prompt
	s.PendingToolCall = pending
	s.Phase = PhaseAwaitInput
	s.UpdatedAt = time.Now().UTC()
}

// ResumeInput 清除挂起标记。
func (s *State) ResumeInput() {
	s.AwaitingHumanInput = false
	s.HumanInputPrompt = ""
	s.UpdatedAt = time.Now().UTC()
}

// Terminal reports whether the conversation turn has finished.
func (s *State) Terminal() bool {
	return s.Phase == PhaseDone
}
