package model

import "strconv"

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusFailure RunStatus = "failure"
)

// Counters accumulates the outcome of one run.
type Counters struct {
	Indexed  int `json:"indexed"`
	Stored   int `json:"stored"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
	Filtered int `json:"filtered"`
}

// Add merges other into c.
func (c *Counters) Add(other Counters) {
	c.Indexed += other.Indexed
	c.Stored += other.Stored
	c.Updated += other.Updated
	c.Failed += other.Failed
	c.Filtered += other.Filtered
}

// StatusSnapshot is the checkpoint persisted by the run tracker. Counts are
// rendered as strings to stay compatible with existing checkpoint readers.
type StatusSnapshot struct {
	RunID           string    `json:"run_id,omitempty" bson:"run_id,omitempty"`
	ReportName      string    `json:"report_name" bson:"report_name"`
	ReportID        string    `json:"report_id" bson:"report_id"`
	Status          RunStatus `json:"status" bson:"status"`
	Collection      string    `json:"kvstore,omitempty" bson:"kvstore,omitempty"`
	Updated         string    `json:"_updated" bson:"_updated"`
	RecordsIndexed  string    `json:"records_index" bson:"records_index"`
	RecordsStored   string    `json:"records_kvstore" bson:"records_kvstore"`
	RecordsUpdated  string    `json:"records_updated" bson:"records_updated"`
	RecordsFailed   string    `json:"records_failed" bson:"records_failed"`
	RecordsFiltered string    `json:"records_filtered" bson:"records_filtered"`
	Message         string    `json:"message" bson:"message"`
}

// NewStatusSnapshot builds a snapshot from the current counters.
func NewStatusSnapshot(runID string, id ReportIdentity, status RunStatus, collection, updated string, c Counters, message string) StatusSnapshot {
	return StatusSnapshot{
		RunID:           runID,
		ReportName:      id.InputName,
		ReportID:        id.ReportID,
		Status:          status,
		Collection:      collection,
		Updated:         updated,
		RecordsIndexed:  strconv.Itoa(c.Indexed),
		RecordsStored:   strconv.Itoa(c.Stored),
		RecordsUpdated:  strconv.Itoa(c.Updated),
		RecordsFailed:   strconv.Itoa(c.Failed),
		RecordsFiltered: strconv.Itoa(c.Filtered),
		Message:         message,
	}
}

// Identity returns the report identity of the snapshot.
func (s StatusSnapshot) Identity() ReportIdentity {
	return ReportIdentity{InputName: s.ReportName, ReportID: s.ReportID}
}
