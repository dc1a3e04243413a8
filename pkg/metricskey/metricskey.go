package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsAgentRunsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_runs_succeeded",
		Help:         "stats_agent_runs_succeeded provides total agent runs succeeded",
		RequiredTags: []string{"agent"},
	}

	StatsAgentRunsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_runs_failed",
		Help:         "stats_agent_runs_failed provides total agent runs failed",
		RequiredTags: []string{"agent"},
	}

	StatsAgentIterationsExhausted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_iterations_exhausted",
		Help:         "stats_agent_iterations_exhausted provides total agent runs that hit the iteration cap",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsInvalidArgs = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_invalid_args",
		Help:         "stats_tool_calls_invalid_args provides total tool calls rejected by argument validation",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfAgentRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_agent_run",
		Help:         "perf_agent_run provides duration of agent run",
		RequiredTags: []string{"agent"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of LLM call",
		RequiredTags: []string{"model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfToolsDiscovery = metrics.Describe{
		Type: metrics.TypeSample,
		Name: "perf_tools_discovery",
		Help: "perf_tools_discovery provides duration of tool discovery",
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAgentRun,
	&PerfLLMCall,
	&PerfToolCall,
	&PerfToolsDiscovery,
	&StatsAgentIterationsExhausted,
	&StatsAgentRunsFailed,
	&StatsAgentRunsSucceeded,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
	&StatsToolCallsFailed,
	&StatsToolCallsInvalidArgs,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
