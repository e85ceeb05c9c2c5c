package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/twinchat/llm"
)

// NewLocalTool 构造只有一个必填字符串参数的进程内工具。
// 参数无法解析或缺失时返回错误，由执行器转为错误结果。
func NewLocalTool(name, description, param, paramDescription string, fn func(ctx context.Context, value string) (string, error)) ToolDefinition {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			param: map[string]any{
				"type":        "string",
				"description": paramDescription,
			},
		},
		"required": []string{param},
	}
	raw, _ := json.Marshal(schema)

	return ToolDefinition{
		Schema: llm.ToolSchema{
			Name:        name,
			Description: description,
			Parameters:  raw,
		},
		Kind: KindLocal,
		Func: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in map[string]any
			if err := json.Unmarshal(normalizeArgs(args), &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			v, ok := in[param].(string)
			if !ok {
				return "", fmt.Errorf("invalid arguments: %q must be a string", param)
			}
			return fn(ctx, v)
		},
	}
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	if strings.TrimSpace(string(args)) == "" {
		return json.RawMessage("{}")
	}
	return args
}
