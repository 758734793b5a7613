package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"2**3", 8},
		{"2^3^2", 512},
		{"2*3^2", 18},
		{"-2^2", -4},
		{"10 % 4", 2},
		{"sqrt(16) + abs(-1)", 5},
		{"max(1, pow(2, 5))", 32},
		{"round(pi * 100) / 100", 3.14},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	for _, expr := range []string{"", "1/0", "2 +", "foo(1)", "(1+2", "sqrt(1, 2)", "import os", "1 2"} {
		_, err := Evaluate(expr)
		assert.Error(t, err, expr)
	}
}

func TestCalculatorTool(t *testing.T) {
	reg := tool.NewRegistry()
	reg.MustRegister(NewCalculator())

	res := reg.Invoke(context.Background(), core.ToolCall{Name: "calculator", Arguments: map[string]any{"expression": "2+2"}})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, 4.0, res.Output.(map[string]any)["result"])

	res = reg.Invoke(context.Background(), core.ToolCall{Name: "calculator", Arguments: map[string]any{"expression": "2/0"}})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "division by zero")
}

const ddgPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fmars.nasa.gov%2Fnews&amp;rut=x">Mars News</a>
  <a class="result__snippet">Perseverance collected a new sample.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/two">Second</a>
  <div class="result__snippet">Another snippet.</div>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/three">Third</a>
</div>
</body></html>`

func TestWebSearch_ParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mars missions", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	ws := NewWebSearch(func(o *WebSearchOptions) { o.Endpoint = srv.URL })
	out, err := ws.Call(context.Background(), map[string]any{"query": "mars missions", "max_results": 2.0})
	require.NoError(t, err)

	text := out.(string)
	assert.Contains(t, text, "1. Mars News")
	assert.Contains(t, text, "Source: https://mars.nasa.gov/news")
	assert.Contains(t, text, "2. Second")
	assert.NotContains(t, text, "Third")
}

func TestWebSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ws := NewWebSearch(func(o *WebSearchOptions) { o.Endpoint = srv.URL })
	_, err := ws.Call(context.Background(), map[string]any{"query": "x"})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "SEARCH_FAILED", toolErr.Code)
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key", body["api_key"])
		_, _ = w.Write([]byte(`{"answer":"42","results":[{"title":"T","url":"https://t","content":"C"}]}`))
	}))
	defer srv.Close()

	ts := NewTavilySearch("key", func(o *TavilyOptions) { o.Endpoint = srv.URL })
	out, err := ts.Call(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "Answer: 42")
	assert.Contains(t, out.(string), "1. T")
}

func TestFileTools_SandboxedToWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o600))

	reg := tool.NewRegistry()
	require.NoError(t, Register(reg, Options{WorkspaceDir: dir}))
	assert.Equal(t, []string{"calculator", "file_reader", "file_writer", "web_search"}, reg.Names())

	res := reg.Invoke(context.Background(), core.ToolCall{Name: "file_reader", Arguments: map[string]any{"path": "notes.txt"}})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "hello", res.Output.(map[string]any)["content"])

	res = reg.Invoke(context.Background(), core.ToolCall{Name: "file_reader", Arguments: map[string]any{"path": "../etc/passwd"}})
	assert.False(t, res.OK)

	res = reg.Invoke(context.Background(), core.ToolCall{Name: "file_writer", Arguments: map[string]any{"filename": "out.txt", "content": "data"}})
	require.True(t, res.OK, res.Error)
	b, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
}
