package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/twinchat/llm"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrDuplicateTool 工具名已被注册
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrToolNotFound 工具名未注册
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidDefinition 工具定义缺少名称或函数
	ErrInvalidDefinition = errors.New("invalid tool definition")
)

// Kind 区分进程内工具与远程操作工具
type Kind uint8

const (
	KindLocal Kind = iota
	KindRemoteOperation
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemoteOperation:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// ToolFunc 工具函数签名。args 为模型给出的 JSON 参数文本，返回值作为 tool 消息内容。
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// ToolDefinition 描述一个可调用工具。注册后不可变。
type ToolDefinition struct {
	Schema  llm.ToolSchema
	Kind    Kind
	Func    ToolFunc
	Timeout time.Duration // 0 表示使用执行器默认值
	Limiter *rate.Limiter // 可选，调用前 Wait
}

// Name 返回工具名称
func (d ToolDefinition) Name() string { return d.Schema.Name }

// ====== Registry ======

// Registry 保存本地与远程工具，二者共享同一命名空间。
// 广播顺序即注册顺序。
type Registry struct {
	mu     sync.RWMutex
	order  []string
	defs   map[string]ToolDefinition
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		defs:   make(map[string]ToolDefinition),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register 注册工具；重名返回 ErrDuplicateTool
func (r *Registry) Register(def ToolDefinition) error {
	name := def.Schema.Name
	if name == "" || def.Func == nil {
		return fmt.Errorf("%w: name=%q", ErrInvalidDefinition, name)
	}
	if len(def.Schema.Parameters) == 0 {
		def.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.defs[name] = def
	r.order = append(r.order, name)

	r.logger.Debug("tool registered",
		zap.String("name", name),
		zap.Stringer("kind", def.Kind),
		zap.Duration("timeout", def.Timeout))
	return nil
}

// MustRegister 注册失败时 panic，用于启动期的静态工具
func (r *Registry) MustRegister(def ToolDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// ListForAdvertisement 按注册顺序返回全部工具定义
func (r *Registry) ListForAdvertisement() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Schemas 按注册顺序返回工具声明，用于构造请求的 tools 字段
func (r *Registry) Schemas() []llm.ToolSchema {
	defs := r.ListForAdvertisement()
	if len(defs) == 0 {
		return nil
	}
	schemas := make([]llm.ToolSchema, len(defs))
	for i, d := range defs {
		schemas[i] = d.Schema
	}
	return schemas
}

// Resolve 按名称查找工具
func (r *Registry) Resolve(name string) (ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return ToolDefinition{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return def, nil
}

// Len 返回已注册工具数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
