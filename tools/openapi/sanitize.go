package openapi

import (
	"strconv"
	"strings"

	"github.com/BaSui01/twinchat/internal/jsontree"
)

const (
	// MaxSchemaNameLength 是清理后 schema 名称的最大长度
	MaxSchemaNameLength = 128
	// PlaceholderSchemaName 在名称清理后为空时使用
	PlaceholderSchemaName = "Schema"

	schemaRefPrefix = "#/components/schemas/"
)

// Rename 记录一个 schema 名称的映射
type Rename struct {
	Original  string
	Sanitized string
}

// ReferenceMap 原始 schema 名称到清理后名称的映射，按原文档顺序保存。
// 映射在定义域上是双射。
type ReferenceMap struct {
	entries []Rename
	index   map[string]string
}

func newReferenceMap(n int) *ReferenceMap {
	return &ReferenceMap{
		entries: make([]Rename, 0, n),
		index:   make(map[string]string, n),
	}
}

func (m *ReferenceMap) add(original, sanitized string) {
	m.entries = append(m.entries, Rename{Original: original, Sanitized: sanitized})
	m.index[original] = sanitized
}

// Lookup 返回 original 对应的新名称
func (m *ReferenceMap) Lookup(original string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m.index[original]
	return s, ok
}

// Entries 按原文档顺序返回全部映射
func (m *ReferenceMap) Entries() []Rename {
	if m == nil {
		return nil
	}
	out := make([]Rename, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len 返回映射条数
func (m *ReferenceMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// IsIdentity 报告是否每个名称都映射到自身
func (m *ReferenceMap) IsIdentity() bool {
	if m == nil {
		return true
	}
	for _, e := range m.entries {
		if e.Original != e.Sanitized {
			return false
		}
	}
	return true
}

// Changed 返回发生改名的条目
func (m *ReferenceMap) Changed() []Rename {
	if m == nil {
		return nil
	}
	var out []Rename
	for _, e := range m.entries {
		if e.Original != e.Sanitized {
			out = append(out, e)
		}
	}
	return out
}

// ====== 名称清理 ======

func isSchemaNameChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
		r == '.' || r == '_' || r == '-'
}

// SanitizeSchemaName 只保留 [A-Za-z0-9._-]，截断到 128 个字符，为空时返回占位名
func SanitizeSchemaName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isSchemaNameChar(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > MaxSchemaNameLength {
		s = s[:MaxSchemaNameLength]
	}
	if s == "" {
		return PlaceholderSchemaName
	}
	return s
}

// uniqueName 追加 _2、_3… 直到名称空闲；必要时缩短基础部分，使结果不超过 128 个字符
func uniqueName(candidate string, used map[string]struct{}) string {
	if _, taken := used[candidate]; !taken {
		return candidate
	}
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		base := candidate
		if len(base)+len(suffix) > MaxSchemaNameLength {
			base = base[:MaxSchemaNameLength-len(suffix)]
		}
		name := base + suffix
		if _, taken := used[name]; !taken {
			return name
		}
	}
}

// BuildReferenceMap 按 schemas 的成员顺序计算无冲突的改名映射
func BuildReferenceMap(schemas *jsontree.Value) *ReferenceMap {
	keys := schemas.Keys()
	m := newReferenceMap(len(keys))
	used := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		name := uniqueName(SanitizeSchemaName(key), used)
		used[name] = struct{}{}
		m.add(key, name)
	}
	return m
}

// ====== 引用改写 ======

// RewriteReferences 返回新树：所有值为 #/components/schemas/<旧名> 的 $ref
// 改写为新名。引用中的名称按 JSON Pointer 转义（~0、~1）解码后再匹配。
// 其他值保持不变，输入不被修改。
func RewriteReferences(doc *jsontree.Value, refs *ReferenceMap) *jsontree.Value {
	return jsontree.Map(doc, func(key string, node *jsontree.Value) *jsontree.Value {
		if key != "$ref" || node.Kind != jsontree.KindString {
			return node
		}
		old, ok := strings.CutPrefix(node.Str, schemaRefPrefix)
		if !ok {
			return node
		}
		if renamed, found := refs.Lookup(old); found {
			if renamed == old {
				return node
			}
			return jsontree.String(schemaRefPrefix + escapePointerToken(renamed))
		}
		// #/components/schemas/X/properties/... 指向 schema 内部
		head, tail, deep := strings.Cut(old, "/")
		name := unescapePointerToken(head)
		renamed, found := refs.Lookup(name)
		if !found || renamed == name {
			return node
		}
		ref := schemaRefPrefix + escapePointerToken(renamed)
		if deep {
			ref += "/" + tail
		}
		return jsontree.String(ref)
	})
}

var (
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
)

// unescapePointerToken 解码 RFC 6901 引用片段
func unescapePointerToken(token string) string {
	if !strings.Contains(token, "~") {
		return token
	}
	return pointerUnescaper.Replace(token)
}

func escapePointerToken(name string) string {
	return pointerEscaper.Replace(name)
}

// renameKeys 按映射重命名对象成员，保持顺序
func renameKeys(schemas *jsontree.Value, refs *ReferenceMap) *jsontree.Value {
	out := jsontree.Object()
	for _, member := range schemas.Members {
		name, ok := refs.Lookup(member.Key)
		if !ok {
			name = member.Key
		}
		out.Members = append(out.Members, jsontree.Member{Key: name, Value: member.Value})
	}
	return out
}

// SanitizeSchemas 清理 schema 名称并改写 schema 之间的引用。
// 无需改名时返回恒等映射和原值本身。
func SanitizeSchemas(schemas *jsontree.Value) (*ReferenceMap, *jsontree.Value) {
	if !schemas.IsObject() {
		return newReferenceMap(0), schemas
	}
	refs := BuildReferenceMap(schemas)
	if refs.IsIdentity() {
		return refs, schemas
	}
	return refs, renameKeys(RewriteReferences(schemas, refs), refs)
}

// SanitizeDocument 对整个文档执行清理：components.schemas 改名，
// 文档内所有位置的 $ref 同步改写。无需改名时返回原文档本身。
func SanitizeDocument(doc *jsontree.Value) (*ReferenceMap, *jsontree.Value) {
	schemas := doc.Path("components", "schemas")
	if !schemas.IsObject() {
		return newReferenceMap(0), doc
	}
	refs := BuildReferenceMap(schemas)
	if refs.IsIdentity() {
		return refs, doc
	}

	out := RewriteReferences(doc, refs)
	components := out.Get("components")
	components.Set("schemas", renameKeys(components.Get("schemas"), refs))
	return refs, out
}

// DanglingReferences 返回文档中指向不存在 schema 的引用名，按出现顺序去重
func DanglingReferences(doc *jsontree.Value) []string {
	schemas := doc.Path("components", "schemas")
	seen := make(map[string]struct{})
	var out []string
	jsontree.Visit(doc, func(key string, node *jsontree.Value) bool {
		if key != "$ref" || node.Kind != jsontree.KindString {
			return true
		}
		if _, ok := resolveSchemaRef(schemas, node.Str); ok {
			return true
		}
		name, ok := schemaRefName(node.Str)
		if !ok {
			return true
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			out = append(out, name)
		}
		return true
	})
	return out
}

// schemaRefName 从 #/components/schemas/X 或 #/components/schemas/X/... 提取解码后的 X
func schemaRefName(ref string) (string, bool) {
	rest, ok := strings.CutPrefix(ref, schemaRefPrefix)
	if !ok || rest == "" {
		return "", false
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return unescapePointerToken(rest), true
}
