package openapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/twinchat/internal/jsontree"
)

var (
	// ErrOperationNotFound 选择器没有匹配任何操作
	ErrOperationNotFound = errors.New("openapi: no operation matched the selector")
	// ErrInvalidOperationKey 操作键格式错误
	ErrInvalidOperationKey = errors.New("openapi: invalid operation key")
)

// httpMethods 是 path item 中可作为操作的成员，按 OpenAPI 定义顺序
var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

func isHTTPMethod(key string) bool {
	for _, m := range httpMethods {
		if m == key {
			return true
		}
	}
	return false
}

// reducedTopLevel 是缩减后文档保留的顶层成员
var reducedTopLevel = map[string]bool{
	"openapi":    true,
	"info":       true,
	"servers":    true,
	"security":   true,
	"components": true,
}

// Selector 判断 path/method（method 为大写）是否被选中
type Selector func(path, method string) bool

// OperationKey 标识一个操作，如 GET /api/items
type OperationKey struct {
	Method string
	Path   string
}

func (k OperationKey) String() string {
	return k.Method + " " + k.Path
}

// ParseOperationKey 解析 "METHOD /path"，方法不区分大小写
func ParseOperationKey(s string) (OperationKey, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return OperationKey{}, fmt.Errorf("%w: %q", ErrInvalidOperationKey, s)
	}
	method := strings.ToLower(fields[0])
	if !isHTTPMethod(method) {
		return OperationKey{}, fmt.Errorf("%w: unknown method in %q", ErrInvalidOperationKey, s)
	}
	if !strings.HasPrefix(fields[1], "/") {
		return OperationKey{}, fmt.Errorf("%w: path must start with / in %q", ErrInvalidOperationKey, s)
	}
	return OperationKey{Method: strings.ToUpper(method), Path: fields[1]}, nil
}

// ParseOperationKeys 批量解析，遇到第一个错误即返回
func ParseOperationKeys(items []string) ([]OperationKey, error) {
	keys := make([]OperationKey, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		k, err := ParseOperationKey(item)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// SelectOperations 由显式操作键构造选择器
func SelectOperations(keys ...OperationKey) Selector {
	set := make(map[OperationKey]struct{}, len(keys))
	for _, k := range keys {
		set[OperationKey{Method: strings.ToUpper(k.Method), Path: k.Path}] = struct{}{}
	}
	return func(path, method string) bool {
		_, ok := set[OperationKey{Method: strings.ToUpper(method), Path: path}]
		return ok
	}
}

// Reduce 只保留被选中的 path/method，丢弃同一 path 下的其他方法和其他 path。
// components 原样带入；path 级 parameters 在该 path 有被选中的方法时一并保留。
// 没有任何匹配时返回 ErrOperationNotFound。
func Reduce(doc *jsontree.Value, selector Selector) (*jsontree.Value, error) {
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: document is not an object", ErrOperationNotFound)
	}

	paths := jsontree.Object()
	for _, p := range doc.Get("paths").Fields() {
		if !p.Value.IsObject() {
			continue
		}
		var item *jsontree.Value
		for _, op := range p.Value.Members {
			if !isHTTPMethod(op.Key) || !selector(p.Key, strings.ToUpper(op.Key)) {
				continue
			}
			if item == nil {
				item = jsontree.Object()
			}
			item.Set(op.Key, op.Value.Clone())
		}
		if item == nil {
			continue
		}
		if shared := p.Value.Get("parameters"); shared.IsArray() {
			item.Members = append([]jsontree.Member{{Key: "parameters", Value: shared.Clone()}}, item.Members...)
		}
		paths.Set(p.Key, item)
	}
	if paths.Len() == 0 {
		return nil, ErrOperationNotFound
	}

	out := jsontree.Object()
	for _, m := range doc.Members {
		switch {
		case m.Key == "paths":
			out.Set("paths", paths)
		case reducedTopLevel[m.Key]:
			out.Set(m.Key, m.Value.Clone())
		}
	}
	if out.Get("paths") == nil {
		out.Set("paths", paths)
	}
	return out, nil
}

// PruneUnreachableSchemas 只保留从 paths 及非 schema 组件经 $ref 可达的 schema。
// 默认流程不启用，完整的 components.schemas 会被带入。
func PruneUnreachableSchemas(doc *jsontree.Value) *jsontree.Value {
	schemas := doc.Path("components", "schemas")
	if !schemas.IsObject() {
		return doc
	}

	reachable := make(map[string]bool)
	var queue []string
	collect := func(v *jsontree.Value) {
		jsontree.Visit(v, func(key string, node *jsontree.Value) bool {
			if key == "$ref" && node.Kind == jsontree.KindString {
				if name, ok := resolveSchemaRef(schemas, node.Str); ok && !reachable[name] {
					reachable[name] = true
					queue = append(queue, name)
				}
			}
			return true
		})
	}

	for _, m := range doc.Members {
		if m.Key != "components" {
			collect(m.Value)
			continue
		}
		for _, c := range m.Value.Fields() {
			if c.Key != "schemas" {
				collect(c.Value)
			}
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		collect(schemas.Get(name))
	}

	kept := jsontree.Object()
	for _, m := range schemas.Members {
		if reachable[m.Key] {
			kept.Members = append(kept.Members, jsontree.Member{Key: m.Key, Value: m.Value})
		}
	}

	out := doc.Clone()
	out.Get("components").Set("schemas", kept.Clone())
	return out
}

// resolveSchemaRef 返回 ref 指向的 schema 名：先精确匹配，再按第一段匹配
func resolveSchemaRef(schemas *jsontree.Value, ref string) (string, bool) {
	name, ok := strings.CutPrefix(ref, schemaRefPrefix)
	if !ok {
		return "", false
	}
	if schemas.Get(name) != nil {
		return name, true
	}
	if head, found := schemaRefName(ref); found && schemas.Get(head) != nil {
		return head, true
	}
	return "", false
}
