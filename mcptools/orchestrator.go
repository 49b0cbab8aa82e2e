package mcptools

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stratumsec/toolgate/mcpcfg"
	"github.com/stratumsec/toolgate/pkg/metricskey"
	"golang.org/x/sync/errgroup"
)

// DefaultConnectTimeout bounds the initialize handshake per server.
const DefaultConnectTimeout = 30 * time.Second

type orchestratorOptions struct {
	connectTimeout time.Duration
	concurrency    int
	sessionOpts    []SessionOption
	transports     map[string]mcp.Transport
}

// Option configures an Orchestrator.
type Option func(*orchestratorOptions)

// WithConnectTimeout bounds the initialize handshake per server. Zero
// disables the bound.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *orchestratorOptions) {
		o.connectTimeout = timeout
	}
}

// WithConcurrency allows up to n servers to be established in parallel.
// The default is sequential, which keeps catalog order equal to
// configuration order.
func WithConcurrency(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 1 {
			o.concurrency = n
		}
	}
}

// WithSessionOptions passes options to every created Session.
func WithSessionOptions(opts ...SessionOption) Option {
	return func(o *orchestratorOptions) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// WithServerTransport overrides the transport for one named server.
func WithServerTransport(server string, t mcp.Transport) Option {
	return func(o *orchestratorOptions) {
		if o.transports == nil {
			o.transports = make(map[string]mcp.Transport)
		}
		o.transports[server] = t
	}
}

// Orchestrator establishes sessions for every configured server, merges
// their capabilities into a Registry, routes dispatches, and tears
// everything down. Individual server failures never abort the whole run;
// only caller cancellation does.
type Orchestrator struct {
	cfg  *mcpcfg.Config
	opts orchestratorOptions
	reg  *Registry

	mu       sync.Mutex
	sessions []*Session
	shutdown bool
}

func NewOrchestrator(cfg *mcpcfg.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg: cfg,
		opts: orchestratorOptions{
			connectTimeout: DefaultConnectTimeout,
		},
		reg: NewRegistry(),
	}
	for _, opt := range opts {
		opt(&o.opts)
	}
	return o
}

// Connect attempts to establish every configured server and populate the
// registry. A server that fails to connect, times out, or fails to list
// its tools is skipped with a log record; Connect returns an error only
// when ctx is canceled. It is safe to call Shutdown after a failed
// Connect.
func (o *Orchestrator) Connect(ctx context.Context) error {
	if o.opts.concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(o.opts.concurrency)
		for _, def := range o.cfg.MCPServers {
			g.Go(func() error {
				return o.establish(ctx, def)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		for _, def := range o.cfg.MCPServers {
			if err := o.establish(ctx, def); err != nil {
				return err
			}
		}
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "connected",
		"servers", len(o.cfg.MCPServers),
		"ready", len(o.readySessions()),
		"capabilities", o.reg.Len(),
	)
	return nil
}

// establish connects one server and registers its capabilities. Only a
// caller cancellation is returned as an error.
func (o *Orchestrator) establish(ctx context.Context, def *mcpcfg.ServerDefinition) error {
	sessOpts := o.opts.sessionOpts
	if t, ok := o.opts.transports[def.Name]; ok {
		sessOpts = append(sessOpts[:len(sessOpts):len(sessOpts)], WithTransport(t))
	}
	sess := NewSession(def, sessOpts...)

	o.mu.Lock()
	o.sessions = append(o.sessions, sess)
	o.mu.Unlock()

	started := time.Now()
	err := sess.Connect(ctx, o.opts.connectTimeout)
	metricskey.PerfServerConnect.MeasureSince(started, def.Name)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		if errors.Is(err, ErrConnectTimeout) {
			metricskey.StatsServerConnectsTimedOut.IncrCounter(1, def.Name)
		} else {
			metricskey.StatsServerConnectsFailed.IncrCounter(1, def.Name)
		}
		logger.ContextKV(ctx, xlog.WARNING, "reason", "connect", "server", def.Name, "err", err.Error())
		return nil
	}
	metricskey.StatsServerConnectsSucceeded.IncrCounter(1, def.Name)

	caps, err := sess.ListCapabilities(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.ContextKV(ctx, xlog.WARNING, "reason", "list_capabilities", "server", def.Name, "err", err.Error())
		return nil
	}
	for _, cap := range caps {
		o.reg.Register(sess, cap)
	}
	metricskey.StatsCapabilitiesDiscovered.IncrCounter(float64(len(caps)), def.Name)
	return nil
}

// Registry returns the merged capability catalog.
func (o *Orchestrator) Registry() *Registry {
	return o.reg
}

// Capabilities returns all registered capabilities in catalog order.
func (o *Orchestrator) Capabilities() []*Capability {
	return o.reg.List()
}

// Dispatch routes an invocation by namespaced capability name. Unknown
// names, builtins and dead sessions produce failure outcomes, never
// errors.
func (o *Orchestrator) Dispatch(ctx context.Context, name string, args map[string]any) *Outcome {
	b, ok := o.reg.Resolve(name)
	if !ok {
		metricskey.StatsDispatchesNotFound.IncrCounter(1, name)
		return Failed("Unknown tool: %s", name)
	}

	started := time.Now()
	out := b.Session.Invoke(ctx, b.Original, args)
	metricskey.PerfDispatch.MeasureSince(started, name)
	if out.Success {
		metricskey.StatsDispatchesSucceeded.IncrCounter(1, name)
	} else {
		metricskey.StatsDispatchesFailed.IncrCounter(1, name)
	}
	return out
}

// Shutdown closes every session that was created, in creation order. It is
// idempotent, tolerates partially initialized state, and never fails.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return
	}
	o.shutdown = true
	sessions := o.sessions
	o.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	logger.KV(xlog.DEBUG, "status", "shutdown", "sessions", len(sessions))
}

func (o *Orchestrator) readySessions() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ready []*Session
	for _, sess := range o.sessions {
		if sess.State() == StateReady {
			ready = append(ready, sess)
		}
	}
	return ready
}
