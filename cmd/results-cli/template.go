package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/bootstrap"
	"github.com/noah-isme/sma-results-api/internal/service"
)

type templateOptions struct {
	batchID string
	out     string
}

func newTemplateCmd() *cobra.Command {
	var opts templateOptions

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the upload CSV template of a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(app *bootstrap.Container, logr *zap.Logger) error {
				path, err := writeTemplate(cmd.Context(), app.Batches, opts, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if path != "" {
					logr.Info("template written", zap.String("path", path))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.batchID, "batch", "", "Result batch id (required)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output file or directory; stdout when empty")
	_ = cmd.MarkFlagRequired("batch")

	return cmd
}

type templateSource interface {
	DownloadTemplate(ctx context.Context, id string) (*service.TemplateFile, error)
}

// writeTemplate returns the written path, or "" when the template went to stdout.
func writeTemplate(ctx context.Context, src templateSource, opts templateOptions, stdout io.Writer) (string, error) {
	file, err := src.DownloadTemplate(ctx, opts.batchID)
	if err != nil {
		return "", err
	}
	if opts.out == "" {
		_, err := stdout.Write(file.Content)
		return "", err
	}

	path := opts.out
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, file.Filename)
	}
	if err := os.WriteFile(path, file.Content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
