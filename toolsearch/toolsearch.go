// Package toolsearch exposes the hosted tool-search tool declarations and
// a local search index over discovered capabilities, so large catalogs can
// be offered to the model without inlining every schema.
package toolsearch

import (
	"github.com/cockroachdb/errors"
)

// Method selects how the model searches the capability catalog.
type Method string

const (
	// MethodNone disables tool search; the full catalog is sent as-is.
	MethodNone Method = ""
	// MethodRegex uses the hosted regex search variant.
	MethodRegex Method = "regex"
	// MethodBM25 uses the hosted relevance-ranked search variant.
	MethodBM25 Method = "bm25"
)

// BetaHeader must be sent with requests that include tool search
// declarations or deferred tool loading.
const BetaHeader = "advanced-tool-use-2025-11-20"

const (
	regexToolName = "tool_search_tool_regex"
	regexToolType = "tool_search_tool_regex_20251119"
	bm25ToolName  = "tool_search_tool_bm25"
	bm25ToolType  = "tool_search_tool_bm25_20251119"
)

func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodNone, MethodRegex, MethodBM25:
		return Method(s), nil
	case "none":
		return MethodNone, nil
	}
	return MethodNone, errors.Newf("unknown search method: %q", s)
}

// Declaration returns the hosted search tool entry to prepend to the tool
// list, or false for MethodNone.
func Declaration(m Method) (map[string]any, bool) {
	switch m {
	case MethodRegex:
		return map[string]any{"type": regexToolType, "name": regexToolName}, true
	case MethodBM25:
		return map[string]any{"type": bm25ToolType, "name": bm25ToolName}, true
	}
	return nil, false
}

// IsBuiltinName reports whether a tool name belongs to the hosted search
// tools. These are executed server-side and never dispatched locally.
func IsBuiltinName(name string) bool {
	return name == regexToolName || name == bm25ToolName
}
