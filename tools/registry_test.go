package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func testTool(name string, h Handler) Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{Name: name, Parameters: objectSchema(nil)},
		Handler:     h,
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(nil)
	assert.Empty(t, r.Declarations())
	assert.Empty(t, r.Config())

	assert.ErrorIs(t, r.Register(Tool{}), shared.ErrEmptyToolName)
	assert.ErrorIs(t, r.Register(Tool{Declaration: &genai.FunctionDeclaration{Name: "x"}}), shared.ErrNoToolHandler)

	noop := func(context.Context, map[string]any) (Result, error) { return Result{}, nil }
	require.NoError(t, r.Register(testTool("a", noop)))
	require.NoError(t, r.Register(testTool("b", noop)))
	require.NoError(t, r.Register(testTool("a", noop)))
	assert.Equal(t, 2, r.Len())

	decls := r.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, "a", decls[0].Name)
	assert.Equal(t, "b", decls[1].Name)
	require.Len(t, r.Config(), 1)

	r.Unregister("a")
	r.Unregister("missing")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "b", r.Declarations()[0].Name)
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry(shared.NewNopLogger())
	require.NoError(t, r.Register(testTool("fails", func(context.Context, map[string]any) (Result, error) {
		return nil, errors.New("disk full")
	})))
	require.NoError(t, r.Register(testTool("panics", func(context.Context, map[string]any) (Result, error) {
		panic("boom")
	})))
	require.NoError(t, r.Register(testTool("echo", func(_ context.Context, args map[string]any) (Result, error) {
		return Result{"args": len(args)}, nil
	})))

	tests := []struct {
		name     string
		call     FunctionCall
		expected Result
	}{
		{"Unknown tool", FunctionCall{ID: "1", Name: "nope"}, Result{"error": "Unknown tool: nope"}},
		{"Handler error", FunctionCall{ID: "2", Name: "fails"}, Result{"error": "disk full"}},
		{"Handler panic", FunctionCall{ID: "3", Name: "panics"}, Result{"error": "boom"}},
		{"Nil args", FunctionCall{ID: "4", Name: "echo"}, Result{"args": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.Execute(context.Background(), tt.call)
			assert.Equal(t, tt.call.ID, resp.ID)
			assert.Equal(t, tt.call.Name, resp.Name)
			assert.Equal(t, tt.expected, resp.Response)
		})
	}
}

func TestRegistryExecuteAllKeepsOrder(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Calculator()))
	require.NoError(t, r.Register(testTool("slow", func(ctx context.Context, _ map[string]any) (Result, error) {
		time.Sleep(20 * time.Millisecond)
		return Result{"done": true}, nil
	})))

	msg := r.ExecuteAll(context.Background(), []FunctionCall{
		{ID: "s", Name: "slow"},
		{ID: "a", Name: CalculateName, Args: map[string]any{"expression": "2+2"}},
		{ID: "b", Name: "unknown_tool", Args: map[string]any{}},
	})

	got := msg.ToolResponse.FunctionResponses
	require.Len(t, got, 3)
	assert.Equal(t, "s", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, 4.0, got[1].Response["result"])
	assert.Equal(t, "b", got[2].ID)
	assert.Contains(t, got[2].Response["error"], "unknown_tool")

	raw, err := sonic.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"toolResponse":{"functionResponses":[`)
}
