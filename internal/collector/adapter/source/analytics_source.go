package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
)

// detailFactKey addresses the ungrouped detail rows of a tabular report.
const detailFactKey = "T!T"

type analyticsDocument struct {
	describeDocument
	FactMap map[string]struct {
		Rows []struct {
			DataCells []struct {
				Label string `json:"label"`
			} `json:"dataCells"`
		} `json:"rows"`
	} `json:"factMap"`
}

// AnalyticsSource reads a report from a single analytics JSON document.
// Cell display labels become record values, one cell per detail column.
type AnalyticsSource struct {
	ReportID string
	Path     string
}

var _ repository.ReportSource = (*AnalyticsSource)(nil)

func (s *AnalyticsSource) load(ctx context.Context) (*analyticsDocument, *model.ReportMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read analytics report: %w", err)
	}
	var doc analyticsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid analytics report: %w", err)
	}
	meta, err := doc.metadata(s.ReportID)
	if err != nil {
		return nil, nil, err
	}
	return &doc, meta, nil
}

// Describe returns the report columns.
func (s *AnalyticsSource) Describe(ctx context.Context) (*model.ReportMetadata, error) {
	_, meta, err := s.load(ctx)
	return meta, err
}

// Records returns the detail rows. A report without detail rows yields none.
func (s *AnalyticsSource) Records(ctx context.Context) ([]*model.Record, error) {
	doc, meta, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	fact, ok := doc.FactMap[detailFactKey]
	if !ok {
		return nil, nil
	}

	records := make([]*model.Record, 0, len(fact.Rows))
	for i, row := range fact.Rows {
		if len(row.DataCells) != len(meta.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, report has %d columns", i, len(row.DataCells), len(meta.Columns))
		}
		rec := model.NewRecord()
		for j, col := range meta.Columns {
			rec.Set(col.Label, row.DataCells[j].Label)
		}
		records = append(records, rec)
	}
	return records, nil
}
