// toolgate connects the MCP servers from a configuration file, merges
// their tools into one namespaced catalog, and drives a model loop that
// can call any of them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stratumsec/toolgate/chat"
	"github.com/stratumsec/toolgate/encoding"
	"github.com/stratumsec/toolgate/mcpcfg"
	"github.com/stratumsec/toolgate/mcptools"
	"github.com/stratumsec/toolgate/store"
	"github.com/stratumsec/toolgate/toolsearch"
)

const apiKeyEnv = "ANTHROPIC_API_KEY"

var (
	flagConfig      string
	flagTimeout     time.Duration
	flagConcurrency int
	flagVerbose     bool

	flagSearch    string
	flagFormat    string
	flagModel     string
	flagSystem    string
	flagMaxTurns  int
	flagMaxTokens int64
	flagDefer     bool
	flagLocal     bool
	flagRedis     string
	flagChatID    string
)

var rootCmd = &cobra.Command{
	Use:           "toolgate",
	Short:         "Multi-server MCP tool gateway for Anthropic models",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
		if flagVerbose {
			xlog.SetGlobalLogLevel(xlog.DEBUG)
		} else {
			xlog.SetGlobalLogLevel(xlog.ERROR)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect the configured servers and list the merged catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		orch, err := connect(ctx)
		if err != nil {
			return err
		}
		defer orch.Shutdown()

		caps := orch.Capabilities()
		if len(caps) == 0 {
			fmt.Println("No tools discovered from the configured servers.")
			return nil
		}
		for _, cap := range caps {
			fmt.Printf("%s\t%s\n", cap.Name, cap.Description)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Send a prompt and let the model call the discovered tools",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		prompt := strings.Join(args, " ")

		apiKey := os.Getenv(apiKeyEnv)
		if apiKey == "" {
			return errors.Newf("missing API key, set it in the %s environment variable", apiKeyEnv)
		}

		method, err := toolsearch.ParseMethod(flagSearch)
		if err != nil {
			return err
		}

		orch, err := connect(ctx)
		if err != nil {
			return err
		}
		defer orch.Shutdown()

		if len(orch.Capabilities()) == 0 {
			fmt.Println("No tools discovered from the configured servers; nothing to offer the model.")
			return nil
		}

		opts := []chat.Option{
			chat.WithModel(flagModel),
			chat.WithSystemPrompt(flagSystem),
			chat.WithMaxTurns(flagMaxTurns),
			chat.WithMaxTokens(flagMaxTokens),
			chat.WithSearchMethod(method),
			chat.WithDeferLoading(flagDefer),
			chat.WithEncoding(encoding.Mode(flagFormat)),
		}
		if flagLocal {
			ix, err := toolsearch.NewIndex(orch.Capabilities())
			if err != nil {
				return err
			}
			defer ix.Close()
			opts = append(opts, chat.WithLocalSearch(ix))
		}
		if flagRedis != "" {
			rdb := redis.NewClient(&redis.Options{Addr: flagRedis})
			defer rdb.Close()
			opts = append(opts, chat.WithStore(store.NewRedisStore(rdb, "toolgate")))
		}

		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		runner, err := chat.NewRunner(&client, orch, opts...)
		if err != nil {
			return err
		}

		res, err := runner.Run(ctx, flagChatID, prompt)
		if err != nil {
			return err
		}

		fmt.Println(res.Text)
		fmt.Fprintf(os.Stderr, "\nturns=%d tool_calls=%d input_tokens=%d output_tokens=%d",
			res.Turns, res.ToolCalls, res.Usage.InputTokens, res.Usage.OutputTokens)
		if res.Usage.SearchRequests > 0 {
			fmt.Fprintf(os.Stderr, " search_requests=%d", res.Usage.SearchRequests)
		}
		fmt.Fprintln(os.Stderr)
		return nil
	},
}

func connect(ctx context.Context) (*mcptools.Orchestrator, error) {
	cfg, err := mcpcfg.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	orch := mcptools.NewOrchestrator(cfg,
		mcptools.WithConnectTimeout(flagTimeout),
		mcptools.WithConcurrency(flagConcurrency),
	)
	if err := orch.Connect(ctx); err != nil {
		orch.Shutdown()
		return nil, err
	}
	return orch, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "mcp_servers.json", "path to the MCP servers configuration")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", mcptools.DefaultConnectTimeout, "per-server initialize timeout")
	rootCmd.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 1, "number of servers to connect in parallel")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "V", false, "enable debug logging")

	runCmd.Flags().StringVar(&flagSearch, "search", "none", "tool search method: none, regex or bm25")
	runCmd.Flags().StringVar(&flagFormat, "format", encoding.ModeJSON, "tool result format: json, toon or yaml")
	runCmd.Flags().StringVar(&flagModel, "model", chat.DefaultModel, "model identifier")
	runCmd.Flags().StringVar(&flagSystem, "system", "", "system prompt")
	runCmd.Flags().IntVar(&flagMaxTurns, "max-turns", chat.DefaultMaxTurns, "maximum model turns per prompt")
	runCmd.Flags().Int64Var(&flagMaxTokens, "max-tokens", chat.DefaultMaxTokens, "maximum output tokens per turn")
	runCmd.Flags().BoolVar(&flagDefer, "defer-loading", false, "defer tool schema loading behind tool search")
	runCmd.Flags().BoolVar(&flagLocal, "local-search", false, "offer a client-side capability_search tool")
	runCmd.Flags().StringVar(&flagRedis, "redis", "", "redis address for transcript persistence, e.g. localhost:6379")
	runCmd.Flags().StringVar(&flagChatID, "chat", "default", "chat ID for transcript persistence")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(toolsCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "toolgate:", err.Error())
		os.Exit(1)
	}
}
