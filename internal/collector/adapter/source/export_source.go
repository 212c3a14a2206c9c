package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
)

// ExportSource reads a report from its describe document and CSV export.
// The export ends with FooterRows trailer rows that are not data.
type ExportSource struct {
	ReportID     string
	DescribePath string
	ExportPath   string
	FooterRows   int
}

var _ repository.ReportSource = (*ExportSource)(nil)

// Describe returns the report columns.
func (s *ExportSource) Describe(ctx context.Context) (*model.ReportMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.DescribePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read describe document: %w", err)
	}
	return parseDescribe(data, s.ReportID)
}

// Records returns the export rows keyed by header label, in header order,
// with the footer removed.
func (s *ExportSource) Records(ctx context.Context) ([]*model.Record, error) {
	f, err := os.Open(s.ExportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open report export: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	// Footer rows have fewer fields than the header.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}

	var records []*model.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export row %d: %w", len(records)+1, err)
		}
		rec := model.NewRecord()
		for i, label := range header {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			rec.Set(label, value)
		}
		records = append(records, rec)
	}
	return dropFooter(records, s.FooterRows), nil
}

func dropFooter(records []*model.Record, footer int) []*model.Record {
	if footer <= 0 {
		return records
	}
	if footer >= len(records) {
		return nil
	}
	return records[:len(records)-footer]
}
