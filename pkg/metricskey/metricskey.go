package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsServerConnectsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_connects_succeeded",
		Help:         "stats_server_connects_succeeded provides total MCP server connects succeeded",
		RequiredTags: []string{"server"},
	}

	StatsServerConnectsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_connects_failed",
		Help:         "stats_server_connects_failed provides total MCP server connects failed",
		RequiredTags: []string{"server"},
	}

	StatsServerConnectsTimedOut = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_connects_timed_out",
		Help:         "stats_server_connects_timed_out provides total MCP server initialize timeouts",
		RequiredTags: []string{"server"},
	}

	StatsCapabilitiesDiscovered = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_capabilities_discovered",
		Help:         "stats_capabilities_discovered provides total capabilities discovered per server",
		RequiredTags: []string{"server"},
	}

	StatsDispatchesSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_dispatches_succeeded",
		Help:         "stats_dispatches_succeeded provides total tool dispatches succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsDispatchesFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_dispatches_failed",
		Help:         "stats_dispatches_failed provides total tool dispatches failed",
		RequiredTags: []string{"tool"},
	}

	StatsDispatchesNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_dispatches_not_found",
		Help:         "stats_dispatches_not_found provides total dispatches to unknown tools",
		RequiredTags: []string{"tool"},
	}

	StatsChatInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_input_tokens",
		Help:         "stats_chat_input_tokens provides total input tokens sent to the model",
		RequiredTags: []string{"model"},
	}

	StatsChatOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_output_tokens",
		Help:         "stats_chat_output_tokens provides total output tokens received from the model",
		RequiredTags: []string{"model"},
	}

	StatsChatSearchRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_search_requests",
		Help:         "stats_chat_search_requests provides total server-side tool search requests",
		RequiredTags: []string{"model"},
	}
)

// Perf
var (
	PerfServerConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_server_connect",
		Help:         "perf_server_connect provides duration of MCP server connect",
		RequiredTags: []string{"server"},
	}

	PerfDispatch = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_dispatch",
		Help:         "perf_dispatch provides duration of tool dispatch",
		RequiredTags: []string{"tool"},
	}

	PerfChatTurn = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_chat_turn",
		Help:         "perf_chat_turn provides duration of a single model turn",
		RequiredTags: []string{"model"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfChatTurn,
	&PerfDispatch,
	&PerfServerConnect,
	&StatsCapabilitiesDiscovered,
	&StatsChatInputTokens,
	&StatsChatOutputTokens,
	&StatsChatSearchRequests,
	&StatsDispatchesFailed,
	&StatsDispatchesNotFound,
	&StatsDispatchesSucceeded,
	&StatsServerConnectsFailed,
	&StatsServerConnectsSucceeded,
	&StatsServerConnectsTimedOut,
}
