package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/service"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

type importerStub struct {
	upload  service.ImportUpload
	content string
	actor   string
}

func (s *importerStub) Import(ctx context.Context, batchID string, upload service.ImportUpload, actorID string) (*models.ImportSummary, error) {
	s.upload = upload
	s.actor = actorID
	data, err := io.ReadAll(upload.Reader)
	if err != nil {
		return nil, err
	}
	s.content = string(data)
	return &models.ImportSummary{BatchID: batchID, Status: models.BatchStatusCompleted, Imported: 1}, nil
}

type templateStub struct {
	err error
}

func (s templateStub) DownloadTemplate(ctx context.Context, id string) (*service.TemplateFile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.TemplateFile{Filename: "RB-2024-T1-001-template.csv", Content: []byte("user_id,email\n")}, nil
}

func TestRunImportStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")
	require.NoError(t, os.WriteFile(path, []byte("user_id\nstu-1\n"), 0o644))

	stub := &importerStub{}
	summary, err := runImport(context.Background(), stub, importOptions{batchID: "batch-1", file: path, actorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "scores.csv", stub.upload.Filename)
	assert.Equal(t, "text/csv", stub.upload.ContentType)
	assert.Equal(t, "user_id\nstu-1\n", stub.content)
	assert.Equal(t, "admin-1", stub.actor)

	var out bytes.Buffer
	require.NoError(t, printSummary(&out, summary))
	assert.Contains(t, out.String(), `"batchId": "batch-1"`)
}

func TestRunImportMissingFile(t *testing.T) {
	_, err := runImport(context.Background(), &importerStub{}, importOptions{batchID: "batch-1", file: filepath.Join(t.TempDir(), "nope.csv")})
	require.Error(t, err)
}

func TestWriteTemplateTargets(t *testing.T) {
	var stdout bytes.Buffer
	path, err := writeTemplate(context.Background(), templateStub{}, templateOptions{batchID: "batch-1"}, &stdout)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, "user_id,email\n", stdout.String())

	dir := t.TempDir()
	path, err = writeTemplate(context.Background(), templateStub{}, templateOptions{batchID: "batch-1", out: dir}, &stdout)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "RB-2024-T1-001-template.csv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "user_id,email\n", string(data))

	_, err = writeTemplate(context.Background(), templateStub{err: appErrors.ErrNotFound}, templateOptions{batchID: "x"}, &stdout)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRootCommandRequiresFlags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"import", "--batch", "batch-1"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
