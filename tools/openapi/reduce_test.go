package openapi

import (
	"testing"

	"github.com/BaSui01/twinchat/internal/jsontree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureDocument = `{
	"openapi":"3.0.1",
	"info":{"title":"VMTP","version":"1.0"},
	"servers":[{"url":"http://vmtp.local:3083/"}],
	"tags":[{"name":"objects"}],
	"paths":{
		"/api/VMTPBaseObjectValue/GetByFilter":{
			"parameters":[{"name":"LayerIdList","in":"query","schema":{"type":"array","items":{"type":"integer"}}}],
			"get":{
				"tags":["objects"],
				"operationId":"VMTPBaseObjectValue.GetByFilter",
				"summary":"Filter base objects",
				"parameters":[
					{"name":"Name","in":"query","description":"object name","schema":{"type":"string"}},
					{"$ref":"#/components/parameters/PageSize"},
					{"name":"Filter","in":"query","schema":{"$ref":"#/components/schemas/Filter<Item>"}},
					{"name":"X-Trace","in":"header","schema":{"type":"string"}}
				],
				"responses":{"200":{"content":{"application/json":{"schema":{"$ref":"#/components/schemas/Page[Item]"}}}}}
			},
			"post":{"operationId":"create","responses":{}}
		},
		"/api/objects/{id}":{
			"get":{"parameters":[{"name":"id","in":"path","schema":{"type":"integer"}}],"responses":{}},
			"delete":{"responses":{}}
		},
		"/api/health":{"get":{"tags":["internal"],"responses":{}}}
	},
	"components":{
		"schemas":{
			"Filter<Item>":{"type":"object","properties":{"node":{"$ref":"#/components/schemas/Node"}}},
			"Node":{"type":"object","properties":{"child":{"$ref":"#/components/schemas/Node"}}},
			"Page[Item]":{"type":"object","properties":{"items":{"type":"array","items":{"$ref":"#/components/schemas/Item"}}}},
			"Item":{"type":"object"},
			"Unused":{"type":"string"},
			"FromResponse":{"type":"string"}
		},
		"parameters":{"PageSize":{"name":"pageSize","in":"query","required":true,"schema":{"type":"integer"}}},
		"responses":{"Err":{"content":{"application/json":{"schema":{"$ref":"#/components/schemas/FromResponse"}}}}}
	}
}`

func methodKeys(item *jsontree.Value) []string {
	var out []string
	for _, k := range item.Keys() {
		if isHTTPMethod(k) {
			out = append(out, k)
		}
	}
	return out
}

func TestParseOperationKey(t *testing.T) {
	tests := []struct {
		in      string
		want    OperationKey
		wantErr bool
	}{
		{in: "GET /api/x", want: OperationKey{Method: "GET", Path: "/api/x"}},
		{in: "  get   /api/x ", want: OperationKey{Method: "GET", Path: "/api/x"}},
		{in: "Patch /y", want: OperationKey{Method: "PATCH", Path: "/y"}},
		{in: "FETCH /y", wantErr: true},
		{in: "GET api/x", wantErr: true},
		{in: "/api/x", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperationKey(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOperationKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Method+" "+tt.want.Path, got.String())
		})
	}

	keys, err := ParseOperationKeys([]string{"GET /a", " ", "post /b"})
	require.NoError(t, err)
	assert.Equal(t, []OperationKey{{"GET", "/a"}, {"POST", "/b"}}, keys)
}

func TestReduce_SelectsSingleOperation(t *testing.T) {
	doc := jsontree.MustParse(fixtureDocument)
	before := string(doc.Raw())

	out, err := Reduce(doc, SelectOperations(OperationKey{Method: "get", Path: "/api/VMTPBaseObjectValue/GetByFilter"}))
	require.NoError(t, err)

	paths := out.Get("paths")
	require.Equal(t, []string{"/api/VMTPBaseObjectValue/GetByFilter"}, paths.Keys())
	item := paths.Get("/api/VMTPBaseObjectValue/GetByFilter")
	assert.Equal(t, []string{"get"}, methodKeys(item))
	assert.Equal(t, []string{"parameters", "get"}, item.Keys(), "path 级参数应保留")

	assert.Equal(t, []string{"openapi", "info", "servers", "paths", "components"}, out.Keys())
	assert.True(t, jsontree.Equal(doc.Get("components"), out.Get("components")), "components 应原样带入")
	assert.Equal(t, before, string(doc.Raw()), "输入文档不应被修改")
}

func TestReduce_NotFound(t *testing.T) {
	doc := jsontree.MustParse(fixtureDocument)

	_, err := Reduce(doc, SelectOperations(OperationKey{Method: "GET", Path: "/missing"}))
	assert.ErrorIs(t, err, ErrOperationNotFound)

	_, err = Reduce(doc, SelectOperations(OperationKey{Method: "PUT", Path: "/api/health"}))
	assert.ErrorIs(t, err, ErrOperationNotFound)

	_, err = Reduce(jsontree.MustParse(`[]`), func(string, string) bool { return true })
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestReduce_IgnoresNonMethodMembers(t *testing.T) {
	doc := jsontree.MustParse(`{"paths":{"/a":{"summary":"s","x-ext":{},"get":{}}}}`)
	var seen []string
	_, err := Reduce(doc, func(path, method string) bool {
		seen = append(seen, method)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"GET"}, seen)
}

func TestPruneUnreachableSchemas(t *testing.T) {
	doc := jsontree.MustParse(fixtureDocument)
	reduced, err := Reduce(doc, SelectOperations(OperationKey{Method: "GET", Path: "/api/VMTPBaseObjectValue/GetByFilter"}))
	require.NoError(t, err)

	pruned := PruneUnreachableSchemas(reduced)
	assert.Equal(t,
		[]string{"Filter<Item>", "Node", "Page[Item]", "Item", "FromResponse"},
		pruned.Path("components", "schemas").Keys())
	assert.Equal(t, 6, reduced.Path("components", "schemas").Len(), "输入文档不应被修改")
	assert.Empty(t, DanglingReferences(pruned))
}

func TestPruneUnreachableSchemas_NoSchemas(t *testing.T) {
	doc := jsontree.MustParse(`{"paths":{}}`)
	assert.Same(t, doc, PruneUnreachableSchemas(doc))
}

func TestReduce_DocumentWithoutPaths(t *testing.T) {
	for name, src := range map[string]string{
		"components only":  `{"openapi":"3.1.0","info":{"title":"t","version":"1"},"components":{"schemas":{"A":{}}}}`,
		"webhooks only":    `{"openapi":"3.1.0","info":{"title":"t","version":"1"},"webhooks":{"ping":{"post":{}}}}`,
		"paths not object": `{"paths":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = Reduce(jsontree.MustParse(src), SelectOperations(OperationKey{Method: "GET", Path: "/x"}))
			})
			assert.ErrorIs(t, err, ErrOperationNotFound)
		})
	}
}

func TestReduce_PathWithoutSharedParameters(t *testing.T) {
	doc := jsontree.MustParse(`{"paths":{"/x":{"get":{"responses":{}}}}}`)

	out, err := Reduce(doc, SelectOperations(OperationKey{Method: "GET", Path: "/x"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"get"}, out.Path("paths", "/x").Keys())
}
