// Package chat drives the model loop: it offers the merged capability
// catalog as tools, dispatches the model's tool calls through the
// orchestrator, and feeds encoded outcomes back until the model produces a
// final answer.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/stratumsec/toolgate/encoding"
	"github.com/stratumsec/toolgate/mcptools"
	"github.com/stratumsec/toolgate/pkg/metricskey"
	"github.com/stratumsec/toolgate/store"
	"github.com/stratumsec/toolgate/toolsearch"
)

var logger = xlog.NewPackageLogger("github.com/stratumsec/toolgate", "chat")

// ErrMaxTurns is returned when the model still requests tools after the
// configured number of turns.
var ErrMaxTurns = errors.New("turn limit reached before a final answer")

// Usage accumulates token and search accounting across a run.
type Usage struct {
	InputTokens    int64 `json:"input_tokens"`
	OutputTokens   int64 `json:"output_tokens"`
	SearchRequests int64 `json:"search_requests,omitempty"`
}

func (u *Usage) add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.SearchRequests += other.SearchRequests
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// RunResult is the final state of one prompt.
type RunResult struct {
	Text      string
	Turns     int
	ToolCalls int
	Usage     Usage
}

// Runner owns one conversation loop over an established orchestrator.
type Runner struct {
	client *anthropic.Client
	orch   *mcptools.Orchestrator
	enc    encoding.ResultEncoder
	store  store.MessageStore
	cfg    config
}

func NewRunner(client *anthropic.Client, orch *mcptools.Orchestrator, opts ...Option) (*Runner, error) {
	cfg := config{
		model:        DefaultModel,
		maxTokens:    DefaultMaxTokens,
		maxTurns:     DefaultMaxTurns,
		encodingMode: encoding.ModeDefault,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	enc, err := encoding.PredefinedResultEncoder(cfg.encodingMode)
	if err != nil {
		return nil, err
	}
	if cfg.store == nil {
		cfg.store = store.NewMemoryStore()
	}

	return &Runner{
		client: client,
		orch:   orch,
		enc:    enc,
		store:  cfg.store,
		cfg:    cfg,
	}, nil
}

// Manifest returns the tool list offered to the model: the hosted search
// declaration first, then the local search capability, then every
// discovered capability in catalog order.
func (r *Runner) Manifest() []map[string]any {
	caps := r.orch.Capabilities()
	manifest := make([]map[string]any, 0, len(caps)+2)

	if decl, ok := toolsearch.Declaration(r.cfg.searchMethod); ok {
		manifest = append(manifest, decl)
	}
	if r.cfg.localIndex != nil {
		manifest = append(manifest, toolEntry(toolsearch.Capability(), false))
	}
	for _, cap := range caps {
		manifest = append(manifest, toolEntry(cap, r.cfg.deferLoading))
	}
	return manifest
}

func toolEntry(cap *mcptools.Capability, deferred bool) map[string]any {
	schema := cap.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	entry := map[string]any{
		"name":         cap.Name,
		"description":  cap.Description,
		"input_schema": schema,
	}
	if deferred && !cap.Builtin {
		entry["defer_loading"] = true
	}
	return entry
}

// Run sends one user prompt and drives the tool loop to completion. The
// transcript grows in the configured store under chatID.
func (r *Runner) Run(ctx context.Context, chatID, prompt string) (*RunResult, error) {
	history := r.store.Messages(ctx, chatID)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.cfg.model),
		MaxTokens: r.cfg.maxTokens,
		Messages:  append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))),
	}
	if r.cfg.system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: r.cfg.system,
			},
		}
	}

	reqOpts := []option.RequestOption{
		option.WithJSONSet("tools", r.Manifest()),
	}
	if r.cfg.searchMethod != toolsearch.MethodNone || r.cfg.deferLoading {
		reqOpts = append(reqOpts, option.WithHeader("anthropic-beta", toolsearch.BetaHeader))
	}

	res := &RunResult{}
	for res.Turns < r.cfg.maxTurns {
		started := time.Now()
		resp, err := r.client.Messages.New(ctx, params, reqOpts...)
		metricskey.PerfChatTurn.MeasureSince(started, r.cfg.model)
		if err != nil {
			return nil, errors.Wrap(err, "message request failed")
		}
		res.Turns++

		turn := turnUsage(resp.Usage)
		res.Usage.add(turn)
		metricskey.StatsChatInputTokens.IncrCounter(float64(turn.InputTokens), r.cfg.model)
		metricskey.StatsChatOutputTokens.IncrCounter(float64(turn.OutputTokens), r.cfg.model)
		if turn.SearchRequests > 0 {
			metricskey.StatsChatSearchRequests.IncrCounter(float64(turn.SearchRequests), r.cfg.model)
		}

		params.Messages = append(params.Messages, resp.ToParam())

		if string(resp.StopReason) != "tool_use" {
			res.Text = collectText(resp)
			newMsgs := params.Messages[len(history):]
			if err := r.store.Add(ctx, chatID, newMsgs...); err != nil {
				logger.ContextKV(ctx, xlog.WARNING, "reason", "store", "chat", chatID, "err", err.Error())
			}
			return res, nil
		}

		results, calls, err := r.dispatchTurn(ctx, resp)
		if err != nil {
			return nil, err
		}
		res.ToolCalls += calls
		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
	}

	return res, errors.WithMessagef(ErrMaxTurns, "turns=%d", res.Turns)
}

// dispatchTurn executes every tool call in the response and returns the
// tool result blocks for the next user message.
func (r *Runner) dispatchTurn(ctx context.Context, resp *anthropic.Message) ([]anthropic.ContentBlockParamUnion, int, error) {
	var results []anthropic.ContentBlockParamUnion
	calls := 0
	for _, block := range resp.Content {
		tu, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		if toolsearch.IsBuiltinName(tu.Name) {
			// hosted search runs server-side
			continue
		}
		calls++

		args, err := toolArguments(tu.Input)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "arguments", "tool", tu.Name, "err", err.Error())
			args = nil
		}

		out := r.execute(ctx, tu.Name, args)
		payload, err := r.enc.Marshal(out)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "unable to encode result of %q", tu.Name)
		}
		logger.ContextKV(ctx, xlog.DEBUG, "tool", tu.Name, "success", out.Success)
		results = append(results, anthropic.NewToolResultBlock(tu.ID, string(payload), !out.Success))
	}
	return results, calls, nil
}

// execute routes one call, handling the local search capability before the
// orchestrator.
func (r *Runner) execute(ctx context.Context, name string, args map[string]any) *mcptools.Outcome {
	if r.cfg.localIndex != nil && name == toolsearch.LocalSearchToolName {
		return r.localSearch(ctx, args)
	}
	return r.orch.Dispatch(ctx, name, args)
}

func (r *Runner) localSearch(ctx context.Context, args map[string]any) *mcptools.Outcome {
	var req toolsearch.SearchRequest
	raw, err := json.Marshal(args)
	if err == nil {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return mcptools.Failed("invalid search request: %s", err.Error())
	}
	if req.Query == "" {
		return mcptools.Failed("invalid search request: query is required")
	}

	matches, err := r.cfg.localIndex.Search(ctx, req.Query, req.Limit)
	if err != nil {
		return mcptools.Failed("search failed: %s", err.Error())
	}
	return mcptools.Succeeded(matches)
}

func toolArguments(input any) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errors.WithStack(err)
	}
	return args, nil
}

func collectText(resp *anthropic.Message) string {
	var parts []string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// turnUsage extracts token counts plus the beta search counter, which is
// not surfaced as a typed field.
func turnUsage(u anthropic.Usage) Usage {
	out := Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
	var aux struct {
		ServerToolUse struct {
			ToolSearchRequests int64 `json:"tool_search_requests"`
		} `json:"server_tool_use"`
	}
	if err := json.Unmarshal([]byte(u.RawJSON()), &aux); err == nil {
		out.SearchRequests = aux.ServerToolUse.ToolSearchRequests
	}
	return out
}
