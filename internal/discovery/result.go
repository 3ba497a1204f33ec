package discovery

import (
	"time"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

// Options tunes a discovery run.
type Options struct {
	// MaxSampleRecords is the number of rows read from each table's first
	// blob. Zero disables sampling.
	MaxSampleRecords int `json:"maxSampleRecords" mapstructure:"max_sample_records"`
}

// DiscoveredTable is one resolved table.
type DiscoveredTable struct {
	Name    string `json:"name"`
	RawName string `json:"rawName"`
	// Schema is nil when inference failed.
	Schema        *model.RecordSchema `json:"schema"`
	BlobPaths     []storage.BlobPath  `json:"blobPaths"`
	ReaderType    string              `json:"readerType"`
	ReaderLabel   string              `json:"readerLabel,omitempty"`
	Readers       []int               `json:"readers"`
	Resolution    Resolution          `json:"resolution"`
	SampleRecords []model.Record      `json:"sampleRecords,omitempty"`

	// FormatSchema is the schema as the format inferred it, before attribute
	// columns were appended. Record sources are opened with it.
	FormatSchema  *model.RecordSchema `json:"-"`
	Contributions []Contribution      `json:"-"`
}

// Result is the outcome of one run. Partial results are normal: inspect
// Issues rather than expecting all-or-nothing.
type Result struct {
	RunID             string                    `json:"runId"`
	Source            string                    `json:"source"`
	Tables            []DiscoveredTable         `json:"tables"`
	Issues            []model.VerificationIssue `json:"issues"`
	BlobCount         int                       `json:"blobCount"`
	UnmappedBlobCount int                       `json:"unmappedBlobCount"`
	Duration          time.Duration             `json:"duration"`
}

// IsSuccessful reports whether the run produced no ERROR issues.
func (r *Result) IsSuccessful() bool {
	for _, i := range r.Issues {
		if i.Severity == model.SeverityError {
			return false
		}
	}
	return true
}

func (r *Result) Errors() []model.VerificationIssue {
	return model.FilterIssues(r.Issues, model.SeverityError)
}

func (r *Result) Warnings() []model.VerificationIssue {
	return model.FilterIssues(r.Issues, model.SeverityWarning)
}

func (r *Result) Infos() []model.VerificationIssue {
	return model.FilterIssues(r.Issues, model.SeverityInfo)
}

// TableNames returns the table names in discovery order.
func (r *Result) TableNames() []string {
	names := make([]string, len(r.Tables))
	for i, t := range r.Tables {
		names[i] = t.Name
	}
	return names
}

// Table returns the named table.
func (r *Result) Table(name string) (*DiscoveredTable, bool) {
	for i := range r.Tables {
		if r.Tables[i].Name == name {
			return &r.Tables[i], true
		}
	}
	return nil, false
}
