package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flipbook/pagepress/internal/blob"
	"github.com/flipbook/pagepress/internal/config"
	"github.com/flipbook/pagepress/internal/pipeline"
	"github.com/flipbook/pagepress/internal/render"
	"github.com/flipbook/pagepress/internal/repo"
)

func main() {
	// Structured JSON logs from the start; every component logs through slog.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "pagepress",
		Short:         "Document conversion pipeline operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReprocessCommand())
	root.AddCommand(newCleanupCommand())

	if err := root.Execute(); err != nil {
		slog.Error("Command failed.", "error", err)
		os.Exit(1)
	}
}

// env bundles everything a command needs to run the pipeline.
type env struct {
	cfg    *config.Config
	repo   repo.Repository
	blobs  blob.Store
	runner *pipeline.Runner
}

func buildEnv(ctx context.Context) (*env, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	repository, err := repo.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	chain := render.NewChain(&render.PopplerBackend{}, &render.FitzBackend{})
	proc := pipeline.NewProcessor(repository, blobs, chain, cfg.Pipeline)
	runner := pipeline.NewRunner(proc, cfg.Pipeline.MaxRetries,
		secondsDuration(cfg.Pipeline.RetryBackoffSecs))

	return &env{cfg: cfg, repo: repository, blobs: blobs, runner: runner}, nil
}

func (e *env) close() {
	if err := e.repo.Close(); err != nil {
		slog.Warn("Failed to close repository.", "error", err)
	}
}
