package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/bootstrap"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/service"
)

type importOptions struct {
	batchID string
	file    string
	actorID string
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a result CSV into a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(app *bootstrap.Container, logr *zap.Logger) error {
				summary, err := runImport(cmd.Context(), app.Importer, opts)
				if err != nil {
					return err
				}
				return printSummary(cmd.OutOrStdout(), summary)
			})
		},
	}

	cmd.Flags().StringVar(&opts.batchID, "batch", "", "Result batch id (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to import (required)")
	cmd.Flags().StringVar(&opts.actorID, "actor", "", "User id recorded as the importer (required)")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

type csvImporter interface {
	Import(ctx context.Context, batchID string, upload service.ImportUpload, actorID string) (*models.ImportSummary, error)
}

func runImport(ctx context.Context, importer csvImporter, opts importOptions) (*models.ImportSummary, error) {
	f, err := os.Open(opts.file)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.file, err)
	}
	defer f.Close()

	return importer.Import(ctx, opts.batchID, service.ImportUpload{
		Filename:    filepath.Base(opts.file),
		ContentType: "text/csv",
		Reader:      f,
	}, opts.actorID)
}

func printSummary(w io.Writer, summary *models.ImportSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
