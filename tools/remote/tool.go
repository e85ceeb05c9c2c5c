package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/twinchat/llm"
	"github.com/BaSui01/twinchat/llm/tools"
	"github.com/BaSui01/twinchat/tools/openapi"
)

const (
	// GetByFilterPath 对象查询接口路径
	GetByFilterPath = "/api/VMTPBaseObjectValue/GetByFilter"
	// GetByFilterToolName 内置过滤查询工具名
	GetByFilterToolName = "getBaseObjectValuesByFilter"
	// SearchObjectsToolName 内置按名称搜索工具名
	SearchObjectsToolName = "searchObjects"
)

// NewTool 把生成的 OpenAPI 工具适配为远程操作工具定义
func NewTool(gen *openapi.GeneratedTool, inv *Invoker) tools.ToolDefinition {
	op := Operation{Name: gen.Name, Path: gen.Path}
	return inv.definition(gen.Schema, op)
}

func (inv *Invoker) definition(schema llm.ToolSchema, op Operation) tools.ToolDefinition {
	return tools.ToolDefinition{
		Schema:  schema,
		Kind:    tools.KindRemoteOperation,
		Timeout: inv.timeout,
		Limiter: inv.limiter,
		Func: func(ctx context.Context, args json.RawMessage) (string, error) {
			// 失败同样以 envelope 返回给模型
			return inv.Invoke(ctx, op, string(args)).String(), nil
		},
	}
}

// GetByFilterTool 内置的对象过滤查询工具，未配置 OpenAPI 文档时使用。
// 参数是自由格式对象，键与 swagger 中的查询参数一致。
func GetByFilterTool(inv *Invoker) tools.ToolDefinition {
	schema := llm.ToolSchema{
		Name: GetByFilterToolName,
		Description: "Performs GET " + GetByFilterPath + ". Arguments are the filter query parameters " +
			"(keys as in swagger). Returns a JSON envelope: on success {ok:true,status,url,total?,data|dataRaw}, " +
			"on failure {ok:false,...}.",
		Parameters: json.RawMessage(`{"type":"object",` +
			`"description":"Filter parameters, for example {\"pageNumber\":1,\"pageSize\":50,\"withValues\":true}",` +
			`"properties":{},"additionalProperties":true}`),
	}
	return inv.definition(schema, Operation{Name: GetByFilterToolName, Path: GetByFilterPath})
}

type searchArgs struct {
	Name    string `json:"name"`
	LayerID *int64 `json:"layerId,omitempty"`
}

// SearchObjectsTool 按名称（可选图层）搜索对象，返回值、元数据与地理数据
func SearchObjectsTool(inv *Invoker) tools.ToolDefinition {
	schema := llm.ToolSchema{
		Name:        SearchObjectsToolName,
		Description: "Searches digital twin objects by name, optionally within one layer. Returns the same JSON envelope as " + GetByFilterToolName + ".",
		Parameters: json.RawMessage(`{"type":"object","properties":{` +
			`"name":{"type":"string","description":"object name to search for"},` +
			`"layerId":{"type":"integer","description":"optional layer id"}},` +
			`"required":["name"]}`),
	}
	op := Operation{Name: SearchObjectsToolName, Path: GetByFilterPath}

	def := inv.definition(schema, op)
	def.Func = func(ctx context.Context, args json.RawMessage) (string, error) {
		var in searchArgs
		if err := json.Unmarshal(args, &in); err != nil || in.Name == "" {
			detail := fmt.Errorf("%w: name is required", ErrInvalidArguments)
			if err != nil {
				detail = fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
			return failureEnvelope(InvalidArguments, "Invalid arguments", detail).String(), nil
		}
		return inv.Invoke(ctx, op, searchQuery(in)).String(), nil
	}
	return def
}

func searchQuery(in searchArgs) string {
	type query struct {
		Name         string `json:"Name"`
		LayerIDList  *int64 `json:"LayerIdList,omitempty"`
		WithValues   bool   `json:"WithValues"`
		WithMetadata bool   `json:"WithMetadata"`
		WithGeoData  bool   `json:"WithGeoData"`
		Deleted      bool   `json:"Deleted"`
	}
	b, _ := json.Marshal(query{
		Name:         in.Name,
		LayerIDList:  in.LayerID,
		WithValues:   true,
		WithMetadata: true,
		WithGeoData:  true,
	})
	return string(b)
}
