package remote

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ErrInvalidArguments 参数不是 JSON 对象或缺少路径参数
var ErrInvalidArguments = errors.New("invalid arguments")

// QueryParam 是一个查询键及其按顺序排列的值
type QueryParam struct {
	Key    string
	Values []string
}

// FlattenQuery 把 JSON 对象的顶层属性展开为查询参数。
// 数组展开为重复键，字符串原样，数字保持原文，布尔为 true/false，
// null 被丢弃（数组内的 null 也丢弃），嵌套对象/数组序列化为紧凑 JSON。
// 键按首次出现的顺序排列，重复键归入首次出现的位置。空白输入视为 {}。
func FlattenQuery(args string) ([]QueryParam, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	if !gjson.Valid(args) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidArguments)
	}
	root := gjson.Parse(args)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", ErrInvalidArguments, kindOf(root))
	}

	var out []QueryParam
	index := make(map[string]int)
	root.ForEach(func(key, value gjson.Result) bool {
		values := flattenValue(value)
		if len(values) == 0 {
			return true
		}
		if i, ok := index[key.Str]; ok {
			out[i].Values = append(out[i].Values, values...)
			return true
		}
		index[key.Str] = len(out)
		out = append(out, QueryParam{Key: key.Str, Values: values})
		return true
	})
	return out, nil
}

func flattenValue(v gjson.Result) []string {
	switch {
	case v.Type == gjson.Null:
		return nil
	case v.IsArray():
		var out []string
		v.ForEach(func(_, item gjson.Result) bool {
			if item.Type != gjson.Null {
				out = append(out, scalarString(item))
			}
			return true
		})
		return out
	default:
		return []string{scalarString(v)}
	}
}

func scalarString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	case gjson.Null:
		return ""
	default:
		return string(pretty.Ugly([]byte(v.Raw)))
	}
}

func kindOf(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.Type == gjson.String:
		return "string"
	case v.Type == gjson.Number:
		return "number"
	case v.Type == gjson.Null:
		return "null"
	default:
		return "boolean"
	}
}

// EncodeQuery 按 RFC 3986 百分号编码拼接查询串，空格编码为 %20
func EncodeQuery(params []QueryParam) string {
	var b strings.Builder
	for _, p := range params {
		for _, v := range p.Values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escape(p.Key))
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// FillPath 用同名参数替换路径模板中的 {name}，被消费的参数从查询中移除
func FillPath(template string, params []QueryParam) (string, []QueryParam, error) {
	if !strings.Contains(template, "{") {
		return template, params, nil
	}

	consumed := make(map[string]bool)
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", nil, fmt.Errorf("%w: unterminated path parameter in %q", ErrInvalidArguments, template)
		}
		name := rest[open+1 : open+closing]
		value, ok := lookupSingle(params, name)
		if !ok {
			return "", nil, fmt.Errorf("%w: missing path parameter %q", ErrInvalidArguments, name)
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(value))
		consumed[name] = true
		rest = rest[open+closing+1:]
	}

	remaining := make([]QueryParam, 0, len(params))
	for _, p := range params {
		if !consumed[p.Key] {
			remaining = append(remaining, p)
		}
	}
	return b.String(), remaining, nil
}

func lookupSingle(params []QueryParam, key string) (string, bool) {
	for _, p := range params {
		if p.Key == key && len(p.Values) == 1 {
			return p.Values[0], true
		}
	}
	return "", false
}
