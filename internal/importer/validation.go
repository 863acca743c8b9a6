package importer

// validation.go classifies mapped rows as valid or invalid.
//
// Validation happens at two levels:
//  1. Mapping validation: every required field must point at a column
//  2. Row validation: every required field must have a non-blank value
//
// Only valid rows reach the sink. Duplicate detection is a hook
// (DuplicateCounter) with no built-in comparison.

import (
	"fmt"
	"strings"
)

// PreviewSize is the maximum number of records kept for preview.
const PreviewSize = 5

// ValidateMapping reports every required spec whose mapping is empty.
// It does not modify its arguments.
func ValidateMapping(specs []FieldSpec, mapping []FieldMapping) error {
	mapped := make(map[string]bool, len(mapping))
	for _, m := range mapping {
		if m.Mapped() {
			mapped[m.TargetField] = true
		}
	}

	var missing []FieldSpec
	for _, spec := range specs {
		if spec.Required && !mapped[spec.Name] {
			missing = append(missing, spec)
		}
	}

	if len(missing) > 0 {
		return &MappingIncompleteError{Missing: missing}
	}
	return nil
}

// DuplicateCounter counts duplicates among valid records.
type DuplicateCounter func(records []Record) int

// NoDuplicates is the default counter: it never reports a duplicate.
func NoDuplicates([]Record) int { return 0 }

// RejectedRow describes a data row that failed validation.
type RejectedRow struct {
	Line    int      `json:"line"`    // 1-indexed line in the tokenized table
	Missing []string `json:"missing"` // Labels of required fields left blank
}

// Reason returns a human-readable description of the failure.
func (r RejectedRow) Reason() string {
	return fmt.Sprintf("line %d: required field is empty: %s", r.Line, strings.Join(r.Missing, ", "))
}

// Result is the outcome of a validation pass.
type Result struct {
	Records  []Record      // Valid records in row order
	Rejected []RejectedRow // Invalid rows in row order
	Stats    Stats
	Preview  []Record // First PreviewSize valid records
}

// Validator validates rows against one entity schema.
type Validator struct {
	Specs      []FieldSpec
	Duplicates DuplicateCounter // nil means NoDuplicates
}

// NewValidator creates a validator for the given specs.
func NewValidator(specs []FieldSpec) *Validator {
	return &Validator{Specs: specs, Duplicates: NoDuplicates}
}

// Validate maps every data row of table through mapping and classifies it.
// The mapping must have exactly one entry per spec and only name known
// fields; otherwise ErrUnknownField is returned.
func (v *Validator) Validate(table *RowTable, mapping []FieldMapping) (*Result, error) {
	if err := v.checkMapping(mapping); err != nil {
		return nil, err
	}

	columns, err := ResolveColumns(mapping, table.Headers())
	if err != nil {
		return nil, err
	}

	rows := table.DataRows()
	result := &Result{
		Records: make([]Record, 0, len(rows)),
		Stats:   Stats{Total: len(rows)},
	}

	for i, row := range rows {
		record := buildRecord(row, mapping, columns)
		missing := v.missingRequired(record)

		if len(missing) > 0 {
			result.Stats.Invalid++
			result.Rejected = append(result.Rejected, RejectedRow{
				Line:    table.lineOffset() + i,
				Missing: missing,
			})
			continue
		}

		result.Stats.Valid++
		result.Records = append(result.Records, record)
		if len(result.Preview) < PreviewSize {
			result.Preview = append(result.Preview, record)
		}
	}

	dup := v.Duplicates
	if dup == nil {
		dup = NoDuplicates
	}
	result.Stats.Duplicates = dup(result.Records)

	return result, nil
}

// checkMapping rejects mappings that do not line up with the schema.
func (v *Validator) checkMapping(mapping []FieldMapping) error {
	if len(mapping) != len(v.Specs) {
		return fmt.Errorf("%w: mapping has %d entries, schema has %d fields", ErrUnknownField, len(mapping), len(v.Specs))
	}

	known := make(map[string]bool, len(v.Specs))
	for _, spec := range v.Specs {
		known[spec.Name] = true
	}
	for _, m := range mapping {
		if !known[m.TargetField] {
			return fmt.Errorf("%w: %q", ErrUnknownField, m.TargetField)
		}
	}
	return nil
}

func (v *Validator) missingRequired(record Record) []string {
	var missing []string
	for _, spec := range v.Specs {
		if !spec.Required {
			continue
		}
		if value, ok := record[spec.Name]; !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, spec.Label)
		}
	}
	return missing
}

// buildRecord populates a record for every mapped field.
func buildRecord(row []string, mapping []FieldMapping, columns ColumnIndex) Record {
	record := make(Record, len(columns))
	for _, m := range mapping {
		pos, ok := columns[m.TargetField]
		if !ok {
			continue
		}
		record[m.TargetField] = cellAt(row, pos)
	}
	return record
}
