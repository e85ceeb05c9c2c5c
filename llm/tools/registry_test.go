package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoTool(name string) ToolDefinition {
	return NewLocalTool(name, "echo "+name, "text", "text to echo", func(_ context.Context, v string) (string, error) {
		return v, nil
	})
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(echoTool("b")))
	require.NoError(t, r.Register(echoTool("a")))

	assert.Equal(t, 2, r.Len())

	def, err := r.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, "a", def.Name())
	assert.Equal(t, KindLocal, def.Kind)

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoTool("get_weather")))

	err := r.Register(echoTool("get_weather"))
	assert.ErrorIs(t, err, ErrDuplicateTool)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_InvalidDefinition(t *testing.T) {
	r := NewRegistry(nil)
	assert.ErrorIs(t, r.Register(ToolDefinition{}), ErrInvalidDefinition)

	def := echoTool("x")
	def.Func = nil
	assert.ErrorIs(t, r.Register(def), ErrInvalidDefinition)
}

func TestRegistry_AdvertisementOrder(t *testing.T) {
	r := NewRegistry(nil)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		r.MustRegister(echoTool(n))
	}

	var names []string
	for _, d := range r.ListForAdvertisement() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)

	schemas := r.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "zeta", schemas[0].Name)
}

func TestRegistry_EmptySchemasIsNil(t *testing.T) {
	assert.Nil(t, NewRegistry(nil).Schemas())
}

func TestRegistry_DefaultParameters(t *testing.T) {
	r := NewRegistry(nil)
	def := echoTool("x")
	def.Schema.Parameters = nil
	require.NoError(t, r.Register(def))

	got, err := r.Resolve("x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(got.Schema.Parameters))
}

func TestNewLocalTool(t *testing.T) {
	def := echoTool("echo")

	var schema map[string]any
	require.NoError(t, json.Unmarshal(def.Schema.Parameters, &schema))
	assert.Equal(t, []any{"text"}, schema["required"])

	tests := []struct {
		name    string
		args    string
		want    string
		wantErr string
	}{
		{name: "正常参数", args: `{"text":"hi"}`, want: "hi"},
		{name: "非 JSON", args: `not json`, wantErr: "invalid arguments"},
		{name: "参数类型错误", args: `{"text":1}`, wantErr: `"text" must be a string`},
		{name: "缺少参数", args: `{}`, wantErr: `"text" must be a string`},
		{name: "空参数", args: `  `, wantErr: `"text" must be a string`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := def.Func(context.Background(), json.RawMessage(tt.args))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
