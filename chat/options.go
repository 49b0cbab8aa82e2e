package chat

import (
	"github.com/stratumsec/toolgate/encoding"
	"github.com/stratumsec/toolgate/store"
	"github.com/stratumsec/toolgate/toolsearch"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5-20250929"

	DefaultMaxTokens = 2048
	DefaultMaxTurns  = 10
)

type config struct {
	model        string
	system       string
	maxTokens    int64
	maxTurns     int
	searchMethod toolsearch.Method
	deferLoading bool
	encodingMode encoding.Mode
	store        store.MessageStore
	localIndex   *toolsearch.Index
}

// Option configures a Runner.
type Option func(*config)

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithSystemPrompt sets the system prompt sent on every turn.
func WithSystemPrompt(system string) Option {
	return func(c *config) {
		c.system = system
	}
}

// WithMaxTokens bounds the model output per turn.
func WithMaxTokens(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithMaxTurns bounds the dispatch loop. The loop also ends when the
// model stops requesting tools.
func WithMaxTurns(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTurns = n
		}
	}
}

// WithSearchMethod prepends the hosted tool-search declaration to the tool
// list.
func WithSearchMethod(m toolsearch.Method) Option {
	return func(c *config) {
		c.searchMethod = m
	}
}

// WithDeferLoading marks MCP-derived tools for deferred loading, so the
// model discovers them through tool search instead of reading every
// schema up front.
func WithDeferLoading(enable bool) Option {
	return func(c *config) {
		c.deferLoading = enable
	}
}

// WithEncoding selects the tool result wire format.
func WithEncoding(mode encoding.Mode) Option {
	return func(c *config) {
		if mode != "" {
			c.encodingMode = mode
		}
	}
}

// WithStore persists transcripts between runs.
func WithStore(s store.MessageStore) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithLocalSearch offers a client-side capability_search tool backed by
// the given index.
func WithLocalSearch(ix *toolsearch.Index) Option {
	return func(c *config) {
		c.localIndex = ix
	}
}
