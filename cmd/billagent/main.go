// Command billagent is a billing assistant connecting Mistral to the
// Lago tool provider. It offers an interactive chat, single-question
// mode, and the tool provider server itself.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/effective-security/billagent/agent"
	"github.com/effective-security/billagent/pkg/acfg"
	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/llms/mistral"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
	"github.com/effective-security/billagent/registry"
	"github.com/effective-security/billagent/store"
	"github.com/effective-security/billagent/toolset"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/billagent", "cli")

const usage = `Usage: billagent [-cfg file] [-D] <command>

Commands:
  chat              interactive chat session
  ask <question>    ask a single question
  serve [-addr]     run the Lago tool provider server
`

func main() {
	cfgFile := flag.String("cfg", "", "configuration file")
	debug := flag.Bool("D", false, "enable debug logging")
	flag.Parse()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if *debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}

	cfg, err := acfg.LoadConfig(*cfgFile)
	if err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "chat":
		err = runChat(ctx, cfg)
	case "ask":
		if len(args) < 2 {
			err = fmt.Errorf("usage: billagent ask <question>")
		} else {
			err = runAsk(ctx, cfg, strings.Join(args[1:], " "))
		}
	case "serve":
		err = runServe(ctx, cfg, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "billagent: %s\n", err.Error())
	os.Exit(1)
}

func newAgent(ctx context.Context, cfg *acfg.Config) (*agent.Agent, func(), error) {
	endpoint := values.StringsCoalesce(cfg.MCP.Endpoint, "http://localhost:8090/mcp")

	var clientOpts []mcp.ClientOption
	if cfg.MCP.RequestTimeout > 0 {
		clientOpts = append(clientOpts, mcp.WithRequestTimeout(time.Duration(cfg.MCP.RequestTimeout)*time.Second))
	}
	client := mcp.NewClient(endpoint, mcp.Info{Name: "billagent", Version: "1.0.0"}, clientOpts...)
	if _, err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}

	reg := registry.New(client)
	if err := reg.Discover(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if err := client.StartListener(ctx); err != nil {
		logger.KV(xlog.WARNING, "status", "listener_unavailable", "err", err.Error())
	}

	var llmOpts []mistral.Option
	if cfg.Mistral.Token != "" {
		llmOpts = append(llmOpts, mistral.WithToken(cfg.Mistral.Token))
	}
	if cfg.Mistral.Model != "" {
		llmOpts = append(llmOpts, mistral.WithModel(cfg.Mistral.Model))
	}
	if cfg.Mistral.BaseURL != "" {
		llmOpts = append(llmOpts, mistral.WithBaseURL(cfg.Mistral.BaseURL))
	}
	llm, err := mistral.New(llmOpts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	chatStore, err := newStore(cfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	agentOpts := []agent.Option{agent.WithStore(chatStore)}
	if cfg.Agent.Name != "" {
		agentOpts = append(agentOpts, agent.WithName(cfg.Agent.Name))
	}
	if cfg.Agent.SystemPrompt != "" {
		agentOpts = append(agentOpts, agent.WithSystemPrompt(cfg.Agent.SystemPrompt))
	}
	if cfg.Agent.MaxIterations > 0 {
		agentOpts = append(agentOpts, agent.WithMaxIterations(cfg.Agent.MaxIterations))
	}

	closer := func() { _ = client.Close() }
	return agent.New(llm, reg, agentOpts...), closer, nil
}

func newStore(cfg *acfg.Config) (store.ChatStore, error) {
	if cfg.Redis.Server == "" {
		return store.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(cfg.Redis.Server)
	if err != nil {
		return nil, err
	}
	return store.NewRedisStore(redis.NewClient(opts), cfg.Redis.Prefix), nil
}

func runAsk(ctx context.Context, cfg *acfg.Config, question string) error {
	ag, closer, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()

	answer, err := ag.Ask(ctx, uuid.New().String(), question)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

func runChat(ctx context.Context, cfg *acfg.Config) error {
	ag, closer, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()

	chatID := uuid.New().String()
	fmt.Println("Lago billing assistant. Type 'exit' or Ctrl-D to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := ag.Ask(ctx, chatID, question)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
			continue
		}
		fmt.Println(answer)
	}
	return scanner.Err()
}

func runServe(ctx context.Context, cfg *acfg.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8090", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var lagoOpts []lago.Option
	if cfg.Lago.APIKey != "" {
		lagoOpts = append(lagoOpts, lago.WithAPIKey(cfg.Lago.APIKey))
	}
	if cfg.Lago.BaseURL != "" {
		lagoOpts = append(lagoOpts, lago.WithBaseURL(cfg.Lago.BaseURL))
	}
	client, err := lago.New(lagoOpts...)
	if err != nil {
		return err
	}

	srv := mcpserver.New(
		mcp.Info{Name: "lago-mcp", Version: "1.0.0"},
		mcpserver.WithInstructions("Tools for querying Lago invoices, customers and subscriptions."),
	)
	if err := toolset.Register(srv, client); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", srv)

	httpSrv := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.KV(xlog.INFO, "status", "listening", "addr", *addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
