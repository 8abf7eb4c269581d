package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// Table is positional tabular content. Rows shorter than Headers are padded with
// blank cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// CSVExporter writes tables as RFC 4180 CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Write streams the table to w.
func (e *CSVExporter) Write(w io.Writer, data Table) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = row[i]
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Render returns the CSV encoding of the table.
func (e *CSVExporter) Render(data Table) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := e.Write(buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
