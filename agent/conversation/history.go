package conversation

import (
	"sync"

	"github.com/BaSui01/twinchat/llm"
)

// Window 决定每次请求发送哪些历史消息，不会删除已存储的历史。
type Window interface {
	Select(history []llm.Message) []llm.Message
}

// UnboundedWindow 发送全部历史
type UnboundedWindow struct{}

func (UnboundedWindow) Select(history []llm.Message) []llm.Message { return history }

// LastNWindow 只发送最近 N 条消息。
// 切分点不会落在 tool 消息上，避免发送缺少对应 assistant 调用的工具结果。
type LastNWindow struct {
	N int
}

func (w LastNWindow) Select(history []llm.Message) []llm.Message {
	if w.N <= 0 || len(history) <= w.N {
		return history
	}
	start := len(history) - w.N
	for start > 0 && history[start].Role == llm.RoleTool {
		start--
	}
	return history[start:]
}

// NewWindow 按配置返回窗口：n<=0 不限。
func NewWindow(n int) Window {
	if n <= 0 {
		return UnboundedWindow{}
	}
	return LastNWindow{N: n}
}

// History 会话历史，只追加；失败的一轮可以回滚到某个长度。
type History struct {
	mu       sync.RWMutex
	messages []llm.Message
}

// NewHistory 创建空历史
func NewHistory() *History {
	return &History{}
}

// Append 追加消息
func (h *History) Append(msgs ...llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Len 返回消息数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Truncate 丢弃 n 之后的消息
func (h *History) Truncate(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n < len(h.messages) {
		clear(h.messages[n:])
		h.messages = h.messages[:n]
	}
}

// Messages 返回历史副本
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last 返回最后一条消息
func (h *History) Last() (llm.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) == 0 {
		return llm.Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}
