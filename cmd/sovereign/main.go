// Command sovereign is the CLI entry point for the orchestrator core.
// Modelled on kadirpekel/hector's cmd/hector: a kong.CLI struct whose
// fields are the subcommands, a Run method per subcommand, and shared
// top-level flags for config path and log level.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/clenoble/sovereign/pkg/config"
	"github.com/clenoble/sovereign/pkg/graphstore"
	"github.com/clenoble/sovereign/pkg/keyvault"
	"github.com/clenoble/sovereign/pkg/logger"
	"github.com/clenoble/sovereign/pkg/model"
	"github.com/clenoble/sovereign/pkg/orchestrator"
)

// CLI is the top-level command surface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Chat     ChatCmd     `cmd:"" help:"Start an interactive chat session against the orchestrator core."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"sovereign.toml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("sovereign version %s\n", version)
	return nil
}

// ValidateCmd loads and validates a config file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Println("config OK")
	return nil
}

// ChatCmd runs a line-oriented REPL against the orchestrator, printing
// proposals and prompting for approve/reject when one is pending.
type ChatCmd struct {
	Provider string `help:"Router/chat model provider (anthropic, openai, ollama)." default:"ollama"`
	Model    string `help:"Router model id." default:"llama3"`
	APIKey   string `name:"api-key" help:"API key for the chosen provider (defaults to its environment variable)."`
	BaseURL  string `name:"base-url" help:"Custom API base URL (Ollama or an OpenAI-compatible server)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	logger.Init(os.Stderr, logger.ParseLevel(cli.LogLevel))

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("sovereign: %w", err)
	}

	factory, family, err := c.buildFactory()
	if err != nil {
		return err
	}

	store := graphstore.NewMemory()
	vault := keyvault.NewMemory()

	orc, err := orchestrator.New(cfg, orchestrator.Deps{
		Store:            store,
		Vault:            vault,
		RouterFactory:    factory,
		ReasoningFactory: factory,
		RouterModelID:    c.Model,
		ReasoningModelID: c.Model,
		PromptFamily:     family,
		SessionLogPath:   cfg.SessionLog.Path,
		TrustLedgerPath:  "sovereign-trust.db",
	})
	if err != nil {
		return fmt.Errorf("sovereign: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	orc.Start(ctx)
	defer orc.Stop()

	fmt.Println("sovereign chat — type your message, or /approve, /reject <reason> for a pending action, Ctrl-D to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		in, ok := parseLine(line, orc)
		if !ok {
			fmt.Println("no pending approval")
			continue
		}
		reply, err := orc.HandleInput(ctx, in)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if reply.Text != "" {
			fmt.Println(reply.Text)
		}
		if reply.Pending != nil {
			fmt.Printf("[pending approval %s: %s on %s]\n", reply.Pending.Token, reply.Pending.Proposal.Action, reply.Pending.Proposal.ToolID)
		}
	}
	return nil
}

func parseLine(line string, orc *orchestrator.Orchestrator) (orchestrator.Input, bool) {
	switch {
	case line == "/approve":
		pending, ok := orc.PendingApproval()
		if !ok {
			return orchestrator.Input{}, false
		}
		return orchestrator.Input{Kind: orchestrator.InputApproval, ApprovalToken: pending.Token}, true
	case strings.HasPrefix(line, "/reject"):
		pending, ok := orc.PendingApproval()
		if !ok {
			return orchestrator.Input{}, false
		}
		reason := strings.TrimSpace(strings.TrimPrefix(line, "/reject"))
		return orchestrator.Input{Kind: orchestrator.InputRejection, ApprovalToken: pending.Token, RejectionReason: reason}, true
	default:
		return orchestrator.Input{Kind: orchestrator.InputQuery, Text: line}, true
	}
}

func (c *ChatCmd) buildFactory() (model.Factory, model.Family, error) {
	switch c.Provider {
	case "anthropic":
		apiKey := c.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return func(modelID string) (model.Backend, error) {
			return model.NewAnthropicBackend(apiKey, modelID)
		}, model.FamilyChatML, nil
	case "openai":
		apiKey := c.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return func(modelID string) (model.Backend, error) {
			return model.NewOpenAIBackend(apiKey, c.BaseURL, modelID)
		}, model.FamilyChatML, nil
	case "ollama":
		return func(modelID string) (model.Backend, error) {
			return model.NewOllamaBackend(c.BaseURL, modelID)
		}, model.FamilyLlama3, nil
	default:
		return nil, "", fmt.Errorf("sovereign: unknown provider %q", c.Provider)
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sovereign"),
		kong.Description("Sovereign AI orchestrator safety core."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
