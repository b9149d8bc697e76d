package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/kmachat/llm"
)

// Counter 统计文本与消息的 token 数，用于限流计费。
type Counter interface {
	CountTokens(text string) int
	CountMessages(messages []llm.Message) int
}

// TiktokenCounter 基于 tiktoken 编码实现 Counter。
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenCounter 创建指定编码的计数器，默认 cl100k_base。
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

func (c *TiktokenCounter) init() {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.initErr = fmt.Errorf("load tiktoken encoding %s: %w", c.encoding, err)
			return
		}
		c.enc = enc
	})
}

// CountTokens 统计单段文本的 token 数。
// 编码加载失败时退化为按 4 字符 1 token 估算，保证计费路径不中断。
func (c *TiktokenCounter) CountTokens(text string) int {
	c.init()
	if c.initErr != nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages 统计一组消息的 token 数，含每条消息的固定开销。
func (c *TiktokenCounter) CountMessages(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		// 每条消息的角色与分隔符开销
		total += 4
		total += c.CountTokens(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.CountTokens(tc.Name)
			total += c.CountTokens(string(tc.Arguments))
		}
	}
	return total
}
