package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stratumsec/toolgate/encoding"
	"github.com/stratumsec/toolgate/mcpcfg"
	"github.com/stratumsec/toolgate/mcptools"
	"github.com/stratumsec/toolgate/toolsearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveFixture runs an in-process MCP server with canned tools and returns
// the client side transport.
func serveFixture(t *testing.T) mcp.Transport {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "fixture", Version: "1.0.0"}, nil)
	server.AddTool(
		&mcp.Tool{
			Name:        "read",
			Description: "Reads a file",
			InputSchema: &jsonschema.Schema{Type: "object"},
		},
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: `{"size": 12}`}},
			}, nil
		},
	)
	server.AddTool(
		&mcp.Tool{
			Name:        "write",
			Description: "Writes a file",
			InputSchema: &jsonschema.Schema{Type: "object"},
		},
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "disk full"}},
			}, nil
		},
	)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(context.Background(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })
	return clientTransport
}

func connectedOrchestrator(t *testing.T) *mcptools.Orchestrator {
	t.Helper()
	cfg := &mcpcfg.Config{
		MCPServers: []*mcpcfg.ServerDefinition{
			{Name: "files", Command: "unused"},
		},
	}
	orch := mcptools.NewOrchestrator(cfg,
		mcptools.WithConnectTimeout(5*time.Second),
		mcptools.WithServerTransport("files", serveFixture(t)),
	)
	require.NoError(t, orch.Connect(context.Background()))
	t.Cleanup(orch.Shutdown)
	return orch
}

func messageFromJSON(t *testing.T, raw string) *anthropic.Message {
	t.Helper()
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return &msg
}

func Test_NewRunner_UnknownEncoding(t *testing.T) {
	orch := connectedOrchestrator(t)
	client := anthropic.NewClient()

	_, err := NewRunner(&client, orch, WithEncoding("protobuf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no predefined encoder")
}

func Test_Manifest(t *testing.T) {
	orch := connectedOrchestrator(t)
	orch.Registry().RegisterBuiltin(&mcptools.Capability{
		Name:        "noop",
		Description: "Does nothing",
		Builtin:     true,
	})

	ix, err := toolsearch.NewIndex(orch.Capabilities())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	client := anthropic.NewClient()
	r, err := NewRunner(&client, orch,
		WithSearchMethod(toolsearch.MethodRegex),
		WithDeferLoading(true),
		WithLocalSearch(ix),
	)
	require.NoError(t, err)

	manifest := r.Manifest()
	require.Len(t, manifest, 5)

	assert.Equal(t, "tool_search_tool_regex_20251119", manifest[0]["type"])
	assert.Equal(t, "tool_search_tool_regex", manifest[0]["name"])

	assert.Equal(t, toolsearch.LocalSearchToolName, manifest[1]["name"])
	_, deferred := manifest[1]["defer_loading"]
	assert.False(t, deferred, "builtins are never deferred")

	assert.Equal(t, "files_read", manifest[2]["name"])
	assert.Equal(t, "Reads a file", manifest[2]["description"])
	assert.NotNil(t, manifest[2]["input_schema"])
	assert.Equal(t, true, manifest[2]["defer_loading"])

	assert.Equal(t, "files_write", manifest[3]["name"])

	// a capability without a schema gets the permissive default
	assert.Equal(t, "noop", manifest[4]["name"])
	assert.Equal(t, map[string]any{"type": "object"}, manifest[4]["input_schema"])
	_, deferred = manifest[4]["defer_loading"]
	assert.False(t, deferred)
}

func Test_Manifest_Plain(t *testing.T) {
	orch := connectedOrchestrator(t)
	client := anthropic.NewClient()
	r, err := NewRunner(&client, orch)
	require.NoError(t, err)

	manifest := r.Manifest()
	require.Len(t, manifest, 2)
	assert.Equal(t, "files_read", manifest[0]["name"])
	assert.Equal(t, "files_write", manifest[1]["name"])
	for _, entry := range manifest {
		_, deferred := entry["defer_loading"]
		assert.False(t, deferred)
	}
}

func Test_DispatchTurn(t *testing.T) {
	ctx := context.Background()
	orch := connectedOrchestrator(t)
	client := anthropic.NewClient()
	r, err := NewRunner(&client, orch)
	require.NoError(t, err)

	msg := messageFromJSON(t, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5-20250929",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "Let me check."},
			{"type": "tool_use", "id": "tu_1", "name": "files_read", "input": {"path": "a.txt"}},
			{"type": "tool_use", "id": "tu_2", "name": "files_write", "input": {"path": "b.txt"}},
			{"type": "tool_use", "id": "tu_3", "name": "files_delete", "input": {}}
		],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	results, calls, err := r.dispatchTurn(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, results, 3)

	ok := results[0].OfToolResult
	require.NotNil(t, ok)
	assert.Equal(t, "tu_1", ok.ToolUseID)
	assert.False(t, ok.IsError.Value)
	require.Len(t, ok.Content, 1)
	assert.JSONEq(t, `{"success": true, "result": {"size": 12}}`, ok.Content[0].OfText.Text)

	failed := results[1].OfToolResult
	require.NotNil(t, failed)
	assert.Equal(t, "tu_2", failed.ToolUseID)
	assert.True(t, failed.IsError.Value)
	assert.JSONEq(t, `{"success": false, "error": "disk full"}`, failed.Content[0].OfText.Text)

	unknown := results[2].OfToolResult
	require.NotNil(t, unknown)
	assert.True(t, unknown.IsError.Value)
	assert.JSONEq(t, `{"success": false, "error": "Unknown tool: files_delete"}`, unknown.Content[0].OfText.Text)
}

func Test_DispatchTurn_SkipsHostedSearch(t *testing.T) {
	ctx := context.Background()
	orch := connectedOrchestrator(t)
	client := anthropic.NewClient()
	r, err := NewRunner(&client, orch, WithSearchMethod(toolsearch.MethodBM25))
	require.NoError(t, err)

	msg := messageFromJSON(t, `{
		"id": "msg_2",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5-20250929",
		"stop_reason": "tool_use",
		"content": [
			{"type": "tool_use", "id": "tu_1", "name": "tool_search_tool_bm25", "input": {"query": "files"}}
		],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	results, calls, err := r.dispatchTurn(ctx, msg)
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Empty(t, results)
}

func Test_LocalSearch(t *testing.T) {
	ctx := context.Background()
	orch := connectedOrchestrator(t)
	ix, err := toolsearch.NewIndex(orch.Capabilities())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	client := anthropic.NewClient()
	r, err := NewRunner(&client, orch, WithLocalSearch(ix))
	require.NoError(t, err)

	out := r.execute(ctx, toolsearch.LocalSearchToolName, map[string]any{"query": "reads"})
	require.True(t, out.Success)
	matches, ok := out.Result.([]toolsearch.Match)
	require.True(t, ok)
	require.NotEmpty(t, matches)
	assert.Equal(t, "files_read", matches[0].Name)

	out = r.execute(ctx, toolsearch.LocalSearchToolName, nil)
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "query is required")
}

func Test_ToolArguments(t *testing.T) {
	args, err := toolArguments(nil)
	require.NoError(t, err)
	assert.Nil(t, args)

	args, err = toolArguments(map[string]any{"path": "a.txt", "depth": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "a.txt", "depth": float64(2)}, args)

	_, err = toolArguments("not an object")
	require.Error(t, err)
}

func Test_CollectText(t *testing.T) {
	msg := messageFromJSON(t, `{
		"id": "msg_3",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5-20250929",
		"stop_reason": "end_turn",
		"content": [
			{"type": "text", "text": "First."},
			{"type": "text", "text": "Second."}
		],
		"usage": {"input_tokens": 3, "output_tokens": 2}
	}`)
	assert.Equal(t, "First.\nSecond.", collectText(msg))
}

func Test_TurnUsage(t *testing.T) {
	msg := messageFromJSON(t, `{
		"id": "msg_4",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5-20250929",
		"stop_reason": "end_turn",
		"content": [],
		"usage": {
			"input_tokens": 120,
			"output_tokens": 40,
			"server_tool_use": {"tool_search_requests": 3}
		}
	}`)

	u := turnUsage(msg.Usage)
	assert.Equal(t, int64(120), u.InputTokens)
	assert.Equal(t, int64(40), u.OutputTokens)
	assert.Equal(t, int64(3), u.SearchRequests)
	assert.Equal(t, int64(160), u.TotalTokens())

	var total Usage
	total.add(u)
	total.add(Usage{InputTokens: 10, OutputTokens: 5})
	assert.Equal(t, int64(130), total.InputTokens)
	assert.Equal(t, int64(45), total.OutputTokens)
	assert.Equal(t, int64(3), total.SearchRequests)
}

func Test_EncodedOutcome_TOON(t *testing.T) {
	enc, err := encoding.PredefinedResultEncoder(encoding.ModeTOON)
	require.NoError(t, err)

	out := mcptools.Succeeded(map[string]any{"size": 12})
	data, err := enc.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "success: true")
}
