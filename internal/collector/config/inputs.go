package config

import (
	"fmt"
	"os"
	"strings"

	"kvstore-collector/internal/collector/domain/model"
	apperrors "kvstore-collector/internal/shared/errors"

	"gopkg.in/yaml.v3"
)

// Report source types.
const (
	SourceExport    = "export"
	SourceAnalytics = "analytics"
)

// DefaultFooterRows is the number of trailer rows a report export carries.
const DefaultFooterRows = 5

// SourceConfig locates a report's data on disk.
type SourceConfig struct {
	Type string `yaml:"type"`
	// Describe and Export are used by the export source: the describe JSON
	// document and the CSV export.
	Describe string `yaml:"describe"`
	Export   string `yaml:"export"`
	// Report is the single JSON document read by the analytics source.
	Report     string `yaml:"report"`
	FooterRows int    `yaml:"footer_rows"`
}

// UnmarshalYAML applies defaults before decoding.
func (s *SourceConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw SourceConfig
	r := raw{Type: SourceExport, FooterRows: DefaultFooterRows}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*s = SourceConfig(r)
	return nil
}

// KeyFields is the identity field list. It accepts a YAML list or a comma
// separated string with optional double quotes.
type KeyFields []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *KeyFields) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*k = model.ParseKeyFields(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*k = model.ParseKeyFields(strings.Join(items, ","))
		return nil
	default:
		return fmt.Errorf("line %d: key_fields must be a string or a list", value.Line)
	}
}

// PurgeSetting accepts none, all, report or a boolean.
type PurgeSetting model.PurgeMode

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PurgeSetting) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: purge must be a scalar", value.Line)
	}
	mode, err := model.ParsePurgeMode(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*p = PurgeSetting(mode)
	return nil
}

// InputDefinition is one configured report input.
type InputDefinition struct {
	Name       string       `yaml:"name"`
	ReportID   string       `yaml:"report_id"`
	Source     SourceConfig `yaml:"source"`
	Collection string       `yaml:"collection"`
	App        string       `yaml:"app"`
	Owner      string       `yaml:"owner"`

	Keyed     bool         `yaml:"keyed"`
	KeyFields KeyFields    `yaml:"key_fields"`
	Purge     PurgeSetting `yaml:"purge"`

	EnableStore    bool   `yaml:"enable_store"`
	EnableIndexing bool   `yaml:"enable_indexing"`
	EnableSchema   bool   `yaml:"enable_schema"`
	EnableLookup   bool   `yaml:"enable_lookup"`
	RecordFilter   string `yaml:"record_filter"`
}

// UnmarshalYAML applies defaults before decoding: the store is enabled and
// nothing is purged unless stated.
func (d *InputDefinition) UnmarshalYAML(value *yaml.Node) error {
	type raw InputDefinition
	r := raw{
		Source:      SourceConfig{Type: SourceExport, FooterRows: DefaultFooterRows},
		Purge:       PurgeSetting(model.PurgeNone),
		EnableStore: true,
	}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*d = InputDefinition(r)
	return nil
}

// Identity returns the report identity of the input.
func (d InputDefinition) Identity() model.ReportIdentity {
	return model.ReportIdentity{InputName: d.Name, ReportID: d.ReportID}
}

// Policy returns the write policy of the input.
func (d InputDefinition) Policy() model.Policy {
	return model.Policy{
		Keyed:     d.Keyed,
		KeyFields: []string(d.KeyFields),
		Purge:     model.PurgeMode(d.Purge),
	}
}

// Validate checks one input; problems are added to ve under the input's name.
func (d InputDefinition) Validate(ve *apperrors.ValidationErrors) {
	prefix := "inputs[" + d.Name + "]."
	if d.Name == "" {
		prefix = "inputs[?]."
		ve.Add("inputs.name", "is required", nil)
	}
	if d.ReportID == "" {
		ve.Add(prefix+"report_id", "is required", nil)
	}

	switch d.Source.Type {
	case SourceExport:
		if d.Source.Describe == "" {
			ve.Add(prefix+"source.describe", "is required for export sources", nil)
		}
		if d.Source.Export == "" {
			ve.Add(prefix+"source.export", "is required for export sources", nil)
		}
		if d.Source.FooterRows < 0 {
			ve.Add(prefix+"source.footer_rows", "must not be negative", d.Source.FooterRows)
		}
	case SourceAnalytics:
		if d.Source.Report == "" {
			ve.Add(prefix+"source.report", "is required for analytics sources", nil)
		}
	default:
		ve.Add(prefix+"source.type", "must be export or analytics", d.Source.Type)
	}

	if d.EnableStore && d.Keyed && len(d.KeyFields) == 0 {
		ve.Add(prefix+"key_fields", "keyed mode requires at least one identity field", nil)
	}
	if !d.EnableStore && !d.EnableIndexing {
		ve.Add(prefix+"enable_store", "input neither stores nor indexes records", nil)
	}
}

// InputsFile is the top-level document of the inputs file.
type InputsFile struct {
	Inputs []InputDefinition `yaml:"inputs"`
}

// ParseInputs decodes and validates an inputs document.
func ParseInputs(data []byte) ([]InputDefinition, error) {
	var file InputsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewConfigurationError("invalid inputs file").WithCause(err)
	}

	ve := apperrors.NewValidationErrors()
	seen := make(map[string]bool, len(file.Inputs))
	for _, in := range file.Inputs {
		in.Validate(ve)
		if in.Name != "" {
			if seen[in.Name] {
				ve.Add("inputs["+in.Name+"]", "is defined more than once", nil)
			}
			seen[in.Name] = true
		}
	}
	if ve.HasErrors() {
		return nil, ve.ToAppError()
	}
	return file.Inputs, nil
}

// LoadInputs reads and validates the inputs file at path.
func LoadInputs(path string) ([]InputDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("cannot read inputs file " + path).WithCause(err)
	}
	return ParseInputs(data)
}

// Find returns the input named name.
func Find(inputs []InputDefinition, name string) (InputDefinition, bool) {
	for _, in := range inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputDefinition{}, false
}
