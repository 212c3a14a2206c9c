package model

import "time"

// TimestampLayout is the format of the _updated stamp and snapshot timestamps.
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Column describes one report column.
type Column struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	SourceDataType string `json:"dataType"`
}

// ReportMetadata is the described schema of a report: columns in source order.
type ReportMetadata struct {
	ReportID string   `json:"reportId"`
	Name     string   `json:"name,omitempty"`
	Columns  []Column `json:"columns"`
}

// Labels returns the column labels in source order.
func (m *ReportMetadata) Labels() []string {
	out := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		out = append(out, c.Label)
	}
	return out
}

// ReportIdentity identifies the input driving a run and the report it collects.
type ReportIdentity struct {
	InputName string `json:"report_name"`
	ReportID  string `json:"report_id"`
}

// InputID tags stored records so a later run of the same report can purge them.
func (id ReportIdentity) InputID() string {
	return id.InputName + "_" + id.ReportID
}

// CheckpointKey is the run tracker key for this report.
func (id ReportIdentity) CheckpointKey() string {
	return id.InputName + "-" + id.ReportID
}

// DefaultCollection is used when an input does not name its collection.
func (id ReportIdentity) DefaultCollection() string {
	if id.InputName != "" {
		return id.InputName
	}
	return id.ReportID
}
