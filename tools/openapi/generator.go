package openapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/twinchat/internal/jsontree"
	"github.com/BaSui01/twinchat/internal/tlsutil"
	"github.com/BaSui01/twinchat/llm"
	"go.uber.org/zap"
)

// ErrSchemaParse 文档不是合法 JSON 对象
var ErrSchemaParse = errors.New("openapi: schema parse failure")

const (
	// MaxToolNameLength 工具名称上限
	MaxToolNameLength = 64

	maxInlineDepth = 4
	envelopeHint   = "Returns a JSON envelope: on success {ok:true,status,url,total?,data|dataRaw}, on failure {ok:false,...}."
)

// Parameter 描述一个映射到工具参数的 query/path 参数
type Parameter struct {
	Name        string `json:"name"`
	In          string `json:"in"` // query 或 path
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// GeneratedTool 由 OpenAPI GET 操作生成的工具
type GeneratedTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      llm.ToolSchema `json:"schema"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	BaseURL     string         `json:"base_url"`
	Parameters  []Parameter    `json:"parameters"`
}

// Manifest 是一次生成的结果
type Manifest struct {
	Document   *jsontree.Value // 清理后的（缩减）文档
	References *ReferenceMap
	Tools      []*GeneratedTool
	Reduced    bool // false 表示未缩减或缩减失败后回退到完整文档
}

// GenerateOptions 工具生成选项
type GenerateOptions struct {
	BaseURL      string         // 覆盖 servers[0].url
	Operations   []OperationKey // 为空时使用完整文档
	PruneSchemas bool
	IncludeTags  []string
	ExcludeTags  []string
	Prefix       string
}

// GeneratorConfig 配置生成器
type GeneratorConfig struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Generator 加载 OpenAPI 文档并生成远程工具清单
type Generator struct {
	httpClient *http.Client
	logger     *zap.Logger
	cache      map[string]*jsontree.Value
	mu         sync.RWMutex
}

// NewGenerator 创建生成器
func NewGenerator(config GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = tlsutil.SecureHTTPClient(timeout)
	}
	return &Generator{
		httpClient: client,
		logger:     logger.With(zap.String("component", "openapi_generator")),
		cache:      make(map[string]*jsontree.Value),
	}
}

// LoadDocument 从文件路径或 http(s) URL 加载文档，按 source 缓存
func (g *Generator) LoadDocument(ctx context.Context, source string) (*jsontree.Value, error) {
	g.mu.RLock()
	if doc, ok := g.cache[source]; ok {
		g.mu.RUnlock()
		return doc, nil
	}
	g.mu.RUnlock()

	var data []byte
	var err error
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = g.fetchFromURL(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("load openapi document %s: %w", source, err)
	}

	doc, err := jsontree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaParse, source, err)
	}
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: %s: top level is %s", ErrSchemaParse, source, doc.Kind)
	}

	g.mu.Lock()
	g.cache[source] = doc
	g.mu.Unlock()

	g.logger.Info("loaded OpenAPI document",
		zap.String("source", source),
		zap.String("title", stringAt(doc, "info", "title")),
		zap.String("version", stringAt(doc, "info", "version")),
		zap.Int("paths", doc.Get("paths").Len()),
		zap.Int("schemas", doc.Path("components", "schemas").Len()))

	return doc, nil
}

func (g *Generator) fetchFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// BuildManifest 缩减 → （可选）裁剪 → 清理 → 生成工具。
// 选择器没有匹配时记录警告并回退到完整文档，完整文档同样会被清理。
func (g *Generator) BuildManifest(ctx context.Context, doc *jsontree.Value, opts GenerateOptions) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: document is not an object", ErrSchemaParse)
	}

	working := doc
	reduced := false
	if len(opts.Operations) > 0 {
		r, err := Reduce(doc, SelectOperations(opts.Operations...))
		switch {
		case errors.Is(err, ErrOperationNotFound):
			g.logger.Warn("selected operations not found, using full document",
				zap.Stringers("operations", opts.Operations))
		case err != nil:
			return nil, err
		default:
			working, reduced = r, true
		}
	}
	if opts.PruneSchemas {
		before := working.Path("components", "schemas").Len()
		working = PruneUnreachableSchemas(working)
		g.logger.Debug("pruned unreachable schemas",
			zap.Int("before", before),
			zap.Int("after", working.Path("components", "schemas").Len()))
	}

	refs, sanitized := SanitizeDocument(working)
	if changed := refs.Changed(); len(changed) > 0 {
		g.logger.Info("sanitized schema names", zap.Int("renamed", len(changed)))
	}

	tools := g.generateTools(sanitized, opts)
	g.logger.Info("generated tools", zap.Int("count", len(tools)), zap.Bool("reduced", reduced))

	return &Manifest{
		Document:   sanitized,
		References: refs,
		Tools:      tools,
		Reduced:    reduced,
	}, nil
}

func (g *Generator) generateTools(doc *jsontree.Value, opts GenerateOptions) []*GeneratedTool {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		if servers := doc.Get("servers").Elements(); len(servers) > 0 {
			baseURL = strings.TrimRight(stringAt(servers[0], "url"), "/")
		}
	}

	var tools []*GeneratedTool
	used := make(map[string]struct{})
	for _, p := range doc.Get("paths").Fields() {
		for _, op := range p.Value.Fields() {
			if !isHTTPMethod(op.Key) || !op.Value.IsObject() {
				continue
			}
			if op.Key != "get" {
				g.logger.Warn("skipping non-GET operation",
					zap.String("method", strings.ToUpper(op.Key)),
					zap.String("path", p.Key))
				continue
			}
			tags := stringList(op.Value.Get("tags"))
			if len(opts.IncludeTags) > 0 && !hasAnyTag(tags, opts.IncludeTags) {
				continue
			}
			if len(opts.ExcludeTags) > 0 && hasAnyTag(tags, opts.ExcludeTags) {
				continue
			}

			tool := operationToTool(doc, p.Key, p.Value, op.Value, baseURL, opts.Prefix)
			tool.Name = uniqueToolName(tool.Name, used)
			tool.Schema.Name = tool.Name
			used[tool.Name] = struct{}{}
			tools = append(tools, tool)
		}
	}
	return tools
}

func operationToTool(doc *jsontree.Value, path string, item, op *jsontree.Value, baseURL, prefix string) *GeneratedTool {
	name := stringAt(op, "operationId")
	if name == "" {
		name = "get_" + sanitizePath(path)
	}
	name = sanitizeToolName(prefix + name)

	description := stringAt(op, "summary")
	if description == "" {
		description = stringAt(op, "description")
	}
	if description == "" {
		description = "GET " + path
	}
	description += " " + envelopeHint

	params := collectParameters(doc, item, op)
	schemas := doc.Path("components", "schemas")

	properties := jsontree.Object()
	var required []*jsontree.Value
	out := make([]Parameter, 0, len(params))
	for _, pv := range params {
		p := Parameter{
			Name:        stringAt(pv, "name"),
			In:          stringAt(pv, "in"),
			Description: stringAt(pv, "description"),
			Required:    boolAt(pv, "required") || stringAt(pv, "in") == "path",
		}
		out = append(out, p)

		prop := inlineSchema(pv.Get("schema"), schemas, 0, map[string]bool{})
		if !prop.IsObject() {
			prop = jsontree.Object(jsontree.Member{Key: "type", Value: jsontree.String("string")})
		}
		if p.Description != "" && prop.Get("description") == nil {
			prop.Set("description", jsontree.String(p.Description))
		}
		properties.Set(p.Name, prop)
		if p.Required {
			required = append(required, jsontree.String(p.Name))
		}
	}

	schema := jsontree.Object(
		jsontree.Member{Key: "type", Value: jsontree.String("object")},
		jsontree.Member{Key: "properties", Value: properties},
	)
	if len(required) > 0 {
		schema.Set("required", jsontree.Array(required...))
	}

	return &GeneratedTool{
		Name:        name,
		Description: description,
		Schema: llm.ToolSchema{
			Name:        name,
			Description: description,
			Parameters:  schema.Raw(),
		},
		Method:     http.MethodGet,
		Path:       path,
		BaseURL:    baseURL,
		Parameters: out,
	}
}

// collectParameters 合并 path 级和操作级的 query/path 参数，操作级覆盖同名同位置参数
func collectParameters(doc, item, op *jsontree.Value) []*jsontree.Value {
	type key struct{ name, in string }
	var order []key
	byKey := make(map[key]*jsontree.Value)

	add := func(list *jsontree.Value) {
		for _, raw := range list.Elements() {
			p := resolveParameter(doc, raw)
			if p == nil {
				continue
			}
			k := key{stringAt(p, "name"), stringAt(p, "in")}
			if k.name == "" || (k.in != "query" && k.in != "path") {
				continue
			}
			if _, seen := byKey[k]; !seen {
				order = append(order, k)
			}
			byKey[k] = p
		}
	}
	add(item.Get("parameters"))
	add(op.Get("parameters"))

	out := make([]*jsontree.Value, len(order))
	for i, k := range order {
		out[i] = byKey[k]
	}
	return out
}

func resolveParameter(doc, p *jsontree.Value) *jsontree.Value {
	if !p.IsObject() {
		return nil
	}
	ref := p.Get("$ref")
	if ref == nil {
		return p
	}
	name, ok := strings.CutPrefix(ref.Str, "#/components/parameters/")
	if !ok {
		return nil
	}
	resolved := doc.Path("components", "parameters", name)
	if !resolved.IsObject() {
		return nil
	}
	return resolved
}

// inlineSchema 把指向 components.schemas 的 $ref 展开，深度上限为 4；
// 循环引用和无法解析的引用替换为 {"type":"object"}
func inlineSchema(v, schemas *jsontree.Value, depth int, visiting map[string]bool) *jsontree.Value {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case jsontree.KindObject:
		if ref := v.Get("$ref"); ref != nil && ref.Kind == jsontree.KindString {
			name, ok := strings.CutPrefix(ref.Str, schemaRefPrefix)
			target := schemas.Get(name)
			if !ok || target == nil || depth >= maxInlineDepth || visiting[name] {
				return opaqueObject()
			}
			visiting[name] = true
			out := inlineSchema(target, schemas, depth+1, visiting)
			delete(visiting, name)
			return out
		}
		out := jsontree.Object()
		for _, m := range v.Members {
			out.Members = append(out.Members, jsontree.Member{Key: m.Key, Value: inlineSchema(m.Value, schemas, depth, visiting)})
		}
		return out
	case jsontree.KindArray:
		out := jsontree.Array()
		for _, item := range v.Items {
			out.Items = append(out.Items, inlineSchema(item, schemas, depth, visiting))
		}
		return out
	default:
		return v.Clone()
	}
}

func opaqueObject() *jsontree.Value {
	return jsontree.Object(jsontree.Member{Key: "type", Value: jsontree.String("object")})
}

// WriteDocument 以缩进格式写出文档
func WriteDocument(path string, doc *jsontree.Value) error {
	data, err := jsontree.MarshalIndent(doc)
	if err != nil {
		return fmt.Errorf("encode openapi document: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write openapi document: %w", err)
	}
	return nil
}

// ====== 辅助函数 ======

func stringAt(v *jsontree.Value, keys ...string) string {
	n := v.Path(keys...)
	if n == nil || n.Kind != jsontree.KindString {
		return ""
	}
	return n.Str
}

func boolAt(v *jsontree.Value, keys ...string) bool {
	n := v.Path(keys...)
	return n != nil && n.Kind == jsontree.KindBool && n.Bool
}

func stringList(v *jsontree.Value) []string {
	if !v.IsArray() {
		return nil
	}
	out := make([]string, 0, len(v.Items))
	for _, item := range v.Items {
		if item.Kind == jsontree.KindString {
			out = append(out, item.Str)
		}
	}
	return out
}

func hasAnyTag(tags, targets []string) bool {
	tagSet := make(map[string]bool)
	for _, t := range tags {
		tagSet[t] = true
	}
	for _, t := range targets {
		if tagSet[t] {
			return true
		}
	}
	return false
}

func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, "{", "")
	path = strings.ReplaceAll(path, "}", "")
	path = strings.Trim(path, "_")
	return path
}

// sanitizeToolName 把 [A-Za-z0-9_-] 以外的字符替换为 _，截断到 64
func sanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if len(s) > MaxToolNameLength {
		s = s[:MaxToolNameLength]
	}
	if s == "" {
		s = "operation"
	}
	return s
}

func uniqueToolName(name string, used map[string]struct{}) string {
	if _, taken := used[name]; !taken {
		return name
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > MaxToolNameLength {
			base = base[:MaxToolNameLength-len(suffix)]
		}
		if _, taken := used[base+suffix]; !taken {
			return base + suffix
		}
	}
}
