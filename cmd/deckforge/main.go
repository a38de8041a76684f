package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/deckforge/internal/config"
	"git.home.luguber.info/inful/deckforge/internal/llm"
	"git.home.luguber.info/inful/deckforge/internal/logfields"
	"git.home.luguber.info/inful/deckforge/internal/loop"
	"git.home.luguber.info/inful/deckforge/internal/metrics"
	"git.home.luguber.info/inful/deckforge/internal/observability"
	"git.home.luguber.info/inful/deckforge/internal/plan"
	"git.home.luguber.info/inful/deckforge/internal/repair"
	"git.home.luguber.info/inful/deckforge/internal/revise"
	"git.home.luguber.info/inful/deckforge/internal/runstore"
	"git.home.luguber.info/inful/deckforge/internal/server"
	"git.home.luguber.info/inful/deckforge/internal/synth"
	"git.home.luguber.info/inful/deckforge/internal/texc"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Generate struct {
		Plan   string `arg:"" help:"Presentation plan JSON file"`
		Assets string `short:"a" help:"Directory holding figure files referenced by the plan"`
		Theme  string `short:"t" help:"Beamer theme" default:"Madrid"`
	} `cmd:"" help:"Generate and compile a deck from a presentation plan"`

	Revise struct {
		RunID       string `arg:"" help:"Run ID of the deck to revise"`
		Instruction string `arg:"" help:"Natural-language revision instruction"`
		Slide       int    `short:"s" help:"Target slide number (otherwise derived from the instruction)"`
		WholeDoc    bool   `help:"Revise the whole document instead of a single slide"`
		Language    string `short:"l" help:"Deck language" default:"en"`
	} `cmd:"" help:"Revise a previously generated deck"`

	Serve struct{} `cmd:"" help:"Serve the deck pipeline over HTTP"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI)

	var err error
	switch ctx.Command() {
	case "generate <plan>":
		err = runGenerate()
	case "revise <run-id> <instruction>":
		err = runRevise()
	case "serve":
		err = runServe()
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if err != nil {
		slog.Error("Command failed", logfields.Error(err))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.Verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}
	observability.Setup(cfg.Logging, os.Stderr)
	return cfg, nil
}

// buildPipeline wires the shared pipeline components from configuration.
func buildPipeline(cfg *config.Config, theme string) (*loop.Pipeline, llm.Client, error) {
	client, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	store, err := runstore.Open(filepath.Join(cfg.Output.Directory, "runs.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open run store: %w", err)
	}
	pipeline := loop.New(
		synth.New(client, theme),
		repair.New(client),
		texc.New(cfg.Compiler, ""),
		cfg.Loop,
		cfg.Compiler.Engine,
		cfg.Output.Directory,
	).WithStore(store)
	return pipeline, client, nil
}

func runGenerate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output.Directory, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	pipeline, _, err := buildPipeline(cfg, CLI.Generate.Theme)
	if err != nil {
		return err
	}
	defer closeStore(pipeline)

	p, err := plan.Load(CLI.Generate.Plan)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := pipeline.Run(ctx, p, CLI.Generate.Assets)
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("run %s %s: %s", out.RunID, out.Status, out.Message)
	}
	fmt.Printf("deck: %s\nrun: %s\nattempts: %d\n", out.ArtifactPath, out.RunID, out.Attempts)
	return nil
}

func runRevise() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pipeline, client, err := buildPipeline(cfg, "")
	if err != nil {
		return err
	}
	defer closeStore(pipeline)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := revise.New(client, pipeline).Revise(ctx, revise.Request{
		RunDir:      filepath.Join(cfg.Output.Directory, CLI.Revise.RunID),
		Instruction: CLI.Revise.Instruction,
		Slide:       CLI.Revise.Slide,
		WholeDoc:    CLI.Revise.WholeDoc,
		Language:    CLI.Revise.Language,
	})
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("revision %s %s: %s", out.RunID, out.Status, out.Message)
	}
	fmt.Printf("deck: %s\nrun: %s\nattempts: %d\n", out.ArtifactPath, out.RunID, out.Attempts)
	return nil
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output.Directory, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	pipeline, client, err := buildPipeline(cfg, "")
	if err != nil {
		return err
	}
	defer closeStore(pipeline)

	registry := prometheus.NewRegistry()
	pipeline.WithRecorder(metrics.NewPrometheusRecorder(registry))
	reviser := revise.New(client, pipeline)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, pipeline, reviser, pipeline.Store(), registry)
	return srv.Start(ctx, CLI.Config)
}

func closeStore(pipeline *loop.Pipeline) {
	if store := pipeline.Store(); store != nil {
		if err := store.Close(); err != nil {
			slog.Warn("Run store close failed", logfields.Error(err))
		}
	}
}
