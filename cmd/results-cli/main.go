package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/bootstrap"
	"github.com/noah-isme/sma-results-api/pkg/config"
	"github.com/noah-isme/sma-results-api/pkg/logger"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "results-cli",
		Short:         "Operate result batches without the HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newImportCmd(), newTemplateCmd())
	return root
}

// withContainer loads configuration, wires services and runs fn.
func withContainer(ctx context.Context, fn func(*bootstrap.Container, *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(app, logr)
}
