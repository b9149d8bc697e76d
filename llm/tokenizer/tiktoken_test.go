package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/kmachat/llm"
)

func TestCountTokens(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter("")
	assert.Equal(t, 0, c.CountTokens(""))
	assert.Greater(t, c.CountTokens("Học viện Kỹ thuật mật mã"), 0)
	// 长文本 token 数单调不减
	short := c.CountTokens("học phí")
	long := c.CountTokens("học phí của sinh viên năm nhất là bao nhiêu")
	assert.Greater(t, long, short)
}

func TestCountMessages(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter("")
	msgs := []llm.Message{
		llm.NewUserMessage("xin chào"),
		llm.NewAssistantMessage("chào bạn"),
	}
	total := c.CountMessages(msgs)
	// 含每条消息的固定开销
	assert.Greater(t, total, c.CountTokens("xin chào")+c.CountTokens("chào bạn"))
}

func TestCountTokens_UnknownEncodingFallsBack(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter("no-such-encoding")
	// 编码加载失败按 4 字符 1 token 估算
	assert.Equal(t, 3, c.CountTokens("0123456789"))
}
