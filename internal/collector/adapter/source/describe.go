package source

import (
	"encoding/json"
	"fmt"

	"kvstore-collector/internal/collector/domain/model"
)

type columnInfo struct {
	Label    string `json:"label"`
	DataType string `json:"dataType"`
}

// describeDocument is the report describe payload. The analytics document
// carries the same two sections next to its fact map.
type describeDocument struct {
	ReportMetadata struct {
		ID            string   `json:"id"`
		Name          string   `json:"name"`
		DetailColumns []string `json:"detailColumns"`
	} `json:"reportMetadata"`
	ReportExtendedMetadata struct {
		DetailColumnInfo map[string]columnInfo `json:"detailColumnInfo"`
	} `json:"reportExtendedMetadata"`
}

// metadata resolves each detail column id to its label and data type, in
// report column order.
func (d *describeDocument) metadata(reportID string) (*model.ReportMetadata, error) {
	meta := &model.ReportMetadata{
		ReportID: d.ReportMetadata.ID,
		Name:     d.ReportMetadata.Name,
		Columns:  make([]model.Column, 0, len(d.ReportMetadata.DetailColumns)),
	}
	if meta.ReportID == "" {
		meta.ReportID = reportID
	}
	for _, id := range d.ReportMetadata.DetailColumns {
		info, ok := d.ReportExtendedMetadata.DetailColumnInfo[id]
		if !ok {
			return nil, fmt.Errorf("column %q has no detailColumnInfo entry", id)
		}
		label := info.Label
		if label == "" {
			label = id
		}
		meta.Columns = append(meta.Columns, model.Column{ID: id, Label: label, SourceDataType: info.DataType})
	}
	return meta, nil
}

func parseDescribe(data []byte, reportID string) (*model.ReportMetadata, error) {
	var doc describeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid describe document: %w", err)
	}
	return doc.metadata(reportID)
}
