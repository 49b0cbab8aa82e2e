package mcptools_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stratumsec/toolgate/mcpcfg"
	"github.com/stratumsec/toolgate/mcptools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureTool struct {
	name  string
	desc  string
	reply func() *mcp.CallToolResult
}

func textReply(texts ...string) func() *mcp.CallToolResult {
	return func() *mcp.CallToolResult {
		res := &mcp.CallToolResult{}
		for _, text := range texts {
			res.Content = append(res.Content, &mcp.TextContent{Text: text})
		}
		return res
	}
}

func errorReply(text string) func() *mcp.CallToolResult {
	return func() *mcp.CallToolResult {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}
	}
}

// serveTools runs an in-process MCP server and returns the client side
// transport to reach it.
func serveTools(t *testing.T, tools ...fixtureTool) mcp.Transport {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "fixture", Version: "1.0.0"}, nil)
	for _, tool := range tools {
		reply := tool.reply
		server.AddTool(
			&mcp.Tool{
				Name:        tool.name,
				Description: tool.desc,
				InputSchema: &jsonschema.Schema{Type: "object"},
			},
			func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return reply(), nil
			},
		)
	}
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(context.Background(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })
	return clientTransport
}

func serverDef(name string) *mcpcfg.ServerDefinition {
	return &mcpcfg.ServerDefinition{Name: name, Command: "unused"}
}

func Test_Session_Lifecycle(t *testing.T) {
	ctx := context.Background()
	transport := serveTools(t,
		fixtureTool{name: "read", desc: "Reads a file", reply: textReply(`{"size": 12}`)},
		fixtureTool{name: "write", reply: textReply("done")},
	)

	sess := mcptools.NewSession(serverDef("files"), mcptools.WithTransport(transport))
	assert.Equal(t, mcptools.StateDisconnected, sess.State())
	assert.Equal(t, "files", sess.Name())

	require.NoError(t, sess.Connect(ctx, 5*time.Second))
	assert.Equal(t, mcptools.StateReady, sess.State())

	// connecting twice is a programming error
	err := sess.Connect(ctx, 5*time.Second)
	require.Error(t, err)

	caps, err := sess.ListCapabilities(ctx)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, "read", caps[0].Name)
	assert.Equal(t, "Reads a file", caps[0].Description)
	assert.Equal(t, "write", caps[1].Name)
	assert.Equal(t, "Tool from files MCP server", caps[1].Description)

	sess.Close()
	assert.Equal(t, mcptools.StateClosed, sess.State())
	sess.Close() // idempotent
	assert.Equal(t, mcptools.StateClosed, sess.State())
}

func Test_Session_Invoke(t *testing.T) {
	ctx := context.Background()
	transport := serveTools(t,
		fixtureTool{name: "json", reply: textReply(`{"temp": 21.5, "unit": "C"}`)},
		fixtureTool{name: "text", reply: textReply("plain reply")},
		fixtureTool{name: "multi", reply: textReply("line one", "line two")},
		fixtureTool{name: "fails", reply: errorReply("boom")},
	)

	sess := mcptools.NewSession(serverDef("api"), mcptools.WithTransport(transport))
	require.NoError(t, sess.Connect(ctx, 5*time.Second))
	defer sess.Close()

	out := sess.Invoke(ctx, "json", nil)
	require.True(t, out.Success)
	assert.Equal(t, map[string]any{"temp": 21.5, "unit": "C"}, out.Result)

	out = sess.Invoke(ctx, "text", nil)
	require.True(t, out.Success)
	assert.Equal(t, "plain reply", out.Result)

	out = sess.Invoke(ctx, "multi", nil)
	require.True(t, out.Success)
	assert.Equal(t, "line one\nline two", out.Result)

	out = sess.Invoke(ctx, "fails", nil)
	require.False(t, out.Success)
	assert.Equal(t, "boom", out.Error)
}

func Test_Session_InvokeNotReady(t *testing.T) {
	sess := mcptools.NewSession(serverDef("down"))

	out := sess.Invoke(context.Background(), "anything", nil)
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "disconnected")

	sess.Close()
	out = sess.Invoke(context.Background(), "anything", nil)
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "closed")
}

func Test_Session_ConnectTimeout(t *testing.T) {
	// nothing serves the other end, so initialize can never complete
	clientTransport, _ := mcp.NewInMemoryTransports()

	sess := mcptools.NewSession(serverDef("slow"), mcptools.WithTransport(clientTransport))
	err := sess.Connect(context.Background(), 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mcptools.ErrConnectTimeout), "got: %v", err)
	assert.Equal(t, mcptools.StateFailed, sess.State())
}

func Test_Session_ConnectInterrupted(t *testing.T) {
	clientTransport, _ := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sess := mcptools.NewSession(serverDef("slow"), mcptools.WithTransport(clientTransport))
	err := sess.Connect(ctx, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got: %v", err)
}
