// Command server wires the agent registry, LLM provider client, and the
// Conversation HTTP API into one listening process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"goa.design/clue/log"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/analyst"
	"github.com/minusxai/minusx/httpapi"
	"github.com/minusxai/minusx/llmbridge"
	"github.com/minusxai/minusx/telemetry"
	"github.com/minusxai/minusx/tools"
)

func main() {
	var (
		httpPortF = flag.String("http-port", "8080", "HTTP port to listen on")
		modelF    = flag.String("model", "claude-sonnet-4-5", "Model identifier the analyst agents drive")
		maxStepsF = flag.Int("max-steps", 40, "Tool-calling step budget per analyst turn")
		providerF = flag.String("provider", "anthropic", "LLM provider backing llmbridge.Client (anthropic or openai)")
		dbgF      = flag.Bool("debug", false, "Enable debug-level logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	logger := telemetry.NewClueLogger()

	client, err := newLLMClient(*providerF)
	if err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}

	reg := agent.NewRegistry()
	if err := buildRegistry(reg, client, *modelF, *maxStepsF); err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}

	handler := httpapi.NewHandler(reg, logger)
	mux := handler.Routes(http.NewServeMux())

	addr := fmt.Sprintf(":%s", *httpPortF)
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			log.Error(ctx, err)
			os.Exit(1)
		}
	case sig := <-sigc:
		log.Printf(ctx, "received %v, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, err)
		}
	}
}

// buildRegistry registers every agent/tool this process serves: the domain
// tool surface (executed client-side), the two sentinels (TalkToUser,
// PresentFinalAnswer), and the LLM-driving AnalystAgent/ReportAgent pair.
func buildRegistry(reg *agent.Registry, client llmbridge.Client, model string, maxSteps int) error {
	if err := tools.RegisterDomainTools(reg); err != nil {
		return fmt.Errorf("register domain tools: %w", err)
	}
	reg.MustRegister(agent.NewTalkToUser())
	reg.MustRegister(agent.NewPresentFinalAnswer())
	reg.MustRegister(analyst.NewAnalystRegistration(client, reg, model, maxSteps))
	reg.MustRegister(analyst.NewReportRegistration(client, model))
	return nil
}

// newLLMClient constructs the provider-specific llmbridge.Client named by
// provider, reading credentials from the provider's usual environment
// variable.
func newLLMClient(provider string) (llmbridge.Client, error) {
	switch provider {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		return llmbridge.NewAnthropicClient(option.WithAPIKey(key)), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return llmbridge.NewOpenAIClient(openaiopt.WithAPIKey(key)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
