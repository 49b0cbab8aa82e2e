package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stratumsec/toolgate/mcpcfg"
)

var logger = xlog.NewPackageLogger("github.com/stratumsec/toolgate", "mcptools")

// State tracks the lifecycle of a Session. Transitions only move forward:
// Disconnected -> Connecting -> Ready -> Closed, with Failed terminal from
// Connecting.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// Session owns one stdio connection to one external MCP server process.
// All protocol traffic for that server flows through its Session.
type Session struct {
	def       *mcpcfg.ServerDefinition
	impl      *mcp.Implementation
	transport mcp.Transport

	mu    sync.Mutex
	state State
	cs    *mcp.ClientSession
}

// SessionOption configures a Session during construction.
type SessionOption func(*Session)

// WithClientInfo overrides the client identity sent in the initialize
// handshake.
func WithClientInfo(name, version string) SessionOption {
	return func(s *Session) {
		s.impl = &mcp.Implementation{Name: name, Version: version}
	}
}

// WithTransport replaces the stdio subprocess transport, for servers
// reachable by other means and for tests.
func WithTransport(t mcp.Transport) SessionOption {
	return func(s *Session) {
		s.transport = t
	}
}

func NewSession(def *mcpcfg.ServerDefinition, opts ...SessionOption) *Session {
	s := &Session{
		def:   def,
		impl:  &mcp.Implementation{Name: "toolgate", Version: "1.0.0"},
		state: StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the configured server name.
func (s *Session) Name() string {
	return s.def.Name
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect launches the server process and performs the initialize
// handshake. Only the handshake is bounded by timeout; process startup is
// not. A cancellation of ctx propagates as-is so callers can distinguish
// interruption from a slow server.
func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return errors.Newf("cannot connect session %q in state %q", s.def.Name, state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	transport := s.transport
	if transport == nil {
		transport = commandTransport(s.def)
	}

	conn, err := transport.Connect(ctx)
	if err != nil {
		s.setState(StateFailed)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "unable to start server %q", s.def.Name)
	}

	hctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client := mcp.NewClient(s.impl, nil)
	cs, err := client.Connect(hctx, &connectedTransport{conn: conn}, nil)
	if err != nil {
		_ = conn.Close()
		s.setState(StateFailed)
		if ctx.Err() != nil {
			// interruption by the caller, not a server fault
			return ctx.Err()
		}
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return errors.WithMessagef(ErrConnectTimeout, "server %q after %s", s.def.Name, timeout)
		}
		return errors.Wrapf(err, "unable to initialize server %q", s.def.Name)
	}

	s.mu.Lock()
	s.cs = cs
	s.state = StateReady
	s.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG, "status", "connected", "server", s.def.Name)
	return nil
}

// ListCapabilities fetches the server's tools. Names are the server's
// original names; the Registry applies namespacing. Missing descriptions
// get a generic fallback so the model always sees one.
func (s *Session) ListCapabilities(ctx context.Context) ([]*Capability, error) {
	s.mu.Lock()
	cs := s.cs
	state := s.state
	s.mu.Unlock()
	if state != StateReady || cs == nil {
		return nil, errors.WithMessagef(ErrNotReady, "server %q is %s", s.def.Name, state)
	}

	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list tools of server %q", s.def.Name)
	}

	caps := make([]*Capability, 0, len(res.Tools))
	for _, tool := range res.Tools {
		caps = append(caps, &Capability{
			Name:        tool.Name,
			Description: values.StringsCoalesce(tool.Description, fmt.Sprintf("Tool from %s MCP server", s.def.Name)),
			InputSchema: tool.InputSchema,
		})
	}
	return caps, nil
}

// Invoke calls a tool by its original name. Failures of any kind become
// failure outcomes; text replies are joined and parsed as JSON when
// possible, otherwise returned literally.
func (s *Session) Invoke(ctx context.Context, name string, args map[string]any) *Outcome {
	s.mu.Lock()
	cs := s.cs
	state := s.state
	s.mu.Unlock()
	if state != StateReady || cs == nil {
		return Failed("server %q is %s", s.def.Name, state)
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "CallTool", "server", s.def.Name, "tool", name, "err", err.Error())
		return Failed("%s", err.Error())
	}

	text := flattenContent(res)
	if res.IsError {
		return Failed("%s", text)
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return Succeeded(parsed)
	}
	return Succeeded(text)
}

// Close tears down the connection and terminates the server process. It is
// idempotent and never fails: teardown errors are logged and swallowed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	if s.cs != nil {
		if err := s.cs.Close(); err != nil {
			logger.KV(xlog.WARNING, "reason", "close", "server", s.def.Name, "err", err.Error())
		}
		s.cs = nil
	}
	s.state = StateClosed
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// commandTransport builds the stdio subprocess transport, merging the
// definition's env into the inherited environment.
func commandTransport(def *mcpcfg.ServerDefinition) mcp.Transport {
	cmd := exec.Command(def.Command, def.Args...)
	if len(def.Env) > 0 {
		env := os.Environ()
		for k, v := range def.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}
}

// connectedTransport hands an already established connection to the client,
// so the handshake can run under a tighter context than process startup.
type connectedTransport struct {
	conn mcp.Connection
}

func (t *connectedTransport) Connect(context.Context) (mcp.Connection, error) {
	return t.conn, nil
}

func flattenContent(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && len(res.Content) > 0 {
		bs, err := json.Marshal(res.Content)
		if err != nil {
			return fmt.Sprintf("%v", res.Content)
		}
		return string(bs)
	}
	return strings.Join(parts, "\n")
}
