package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/BaSui01/twinchat/llm"
	"github.com/BaSui01/twinchat/llm/tools"
	"github.com/BaSui01/twinchat/tools/openapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewTool(t *testing.T) {
	srv, _, captured := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":5}`))
	})
	limiter := rate.NewLimiter(rate.Limit(10), 1)
	inv := NewInvoker(Config{BaseURL: srv.URL, HTTPClient: srv.Client(), Limiter: limiter}, nil)

	gen := &openapi.GeneratedTool{
		Name:   "getObject",
		Path:   "/api/objects/{id}",
		Schema: llm.ToolSchema{Name: "getObject", Parameters: json.RawMessage(`{"type":"object"}`)},
	}
	def := NewTool(gen, inv)

	assert.Equal(t, tools.KindRemoteOperation, def.Kind)
	assert.Equal(t, "getObject", def.Name())
	assert.Same(t, limiter, def.Limiter)
	assert.Equal(t, DefaultTimeout, def.Timeout)

	out, err := def.Func(context.Background(), json.RawMessage(`{"id":"a/b"}`))
	require.NoError(t, err)
	path, _, _, _ := captured.get()
	assert.Equal(t, "/api/objects/a%2Fb", path)
	assert.JSONEq(t, `{"ok":true,"status":200,"url":"`+srv.URL+`/api/objects/a%2Fb","data":{"value":5}}`, out)
}

func TestNewTool_FailureIsEnvelopeNotError(t *testing.T) {
	inv := NewInvoker(Config{BaseURL: "http://unused"}, nil)
	def := GetByFilterTool(inv)

	out, err := def.Func(context.Background(), json.RawMessage(`5`))
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, false, env["ok"])
	assert.Equal(t, string(InvalidArguments), env["error"])
}

func TestGetByFilterTool(t *testing.T) {
	srv, _, captured := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Total-Count", "1")
		_, _ = w.Write([]byte(`[]`))
	})
	def := GetByFilterTool(NewInvoker(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, nil))

	assert.Equal(t, GetByFilterToolName, def.Name())
	var schema map[string]any
	require.NoError(t, json.Unmarshal(def.Schema.Parameters, &schema))
	assert.Equal(t, "object", schema["type"])

	out, err := def.Func(context.Background(), json.RawMessage(`{"pageNumber":1,"LayerIdList":[3,4]}`))
	require.NoError(t, err)
	path, rawQuery, _, _ := captured.get()
	assert.Equal(t, GetByFilterPath, path)
	assert.Equal(t, "pageNumber=1&LayerIdList=3&LayerIdList=4", rawQuery)
	assert.Contains(t, out, `"total":"1"`)
}

func TestSearchObjectsTool(t *testing.T) {
	srv, calls, captured := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	def := SearchObjectsTool(NewInvoker(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, nil))

	_, err := def.Func(context.Background(), json.RawMessage(`{"name":"Tower 1","layerId":3}`))
	require.NoError(t, err)
	_, rawQuery, _, _ := captured.get()
	assert.Equal(t, "Name=Tower%201&LayerIdList=3&WithValues=true&WithMetadata=true&WithGeoData=true&Deleted=false", rawQuery)

	_, err = def.Func(context.Background(), json.RawMessage(`{"name":"Tower"}`))
	require.NoError(t, err)
	_, rawQuery, _, _ = captured.get()
	assert.Equal(t, "Name=Tower&WithValues=true&WithMetadata=true&WithGeoData=true&Deleted=false", rawQuery)

	out, err := def.Func(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out, `"error":"InvalidArguments"`)
	assert.Equal(t, int32(2), calls.Load())
}
