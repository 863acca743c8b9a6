package importer

// mapping.go proposes and edits the association between source columns and
// target fields.
//
// Matching is a plain case-insensitive substring test: a header matches a
// field when it contains the field name or the field label. Fields are
// resolved in registry order and, for each field, the first matching header
// in file order wins. A header may serve more than one field.

import (
	"fmt"
	"strings"
)

// AutoMap returns one FieldMapping per spec, in spec order.
// sample is the first data row; it may be nil.
func AutoMap(headers []string, specs []FieldSpec, sample []string) []FieldMapping {
	lowered := make([]string, len(headers))
	for i, h := range headers {
		lowered[i] = strings.ToLower(h)
	}

	mapping := make([]FieldMapping, len(specs))
	for i, spec := range specs {
		mapping[i] = FieldMapping{TargetField: spec.Name}

		name := strings.ToLower(spec.Name)
		label := strings.ToLower(spec.Label)
		for pos, h := range lowered {
			if strings.Contains(h, name) || strings.Contains(h, label) {
				mapping[i].SourceHeader = headers[pos]
				mapping[i].SampleValue = cellAt(sample, pos)
				break
			}
		}
	}
	return mapping
}

// Remap returns a copy of mapping with field pointed at header.
// An empty header clears the entry. Only the changed entry's sample is
// recomputed.
func Remap(mapping []FieldMapping, field, header string, headers []string, sample []string) ([]FieldMapping, error) {
	idx := -1
	for i, m := range mapping {
		if m.TargetField == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	pos := -1
	if header != "" {
		pos = headerIndex(headers, header)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownHeader, header)
		}
	}

	updated := append([]FieldMapping(nil), mapping...)
	updated[idx].SourceHeader = header
	updated[idx].SampleValue = cellAt(sample, pos)
	return updated, nil
}

// ColumnIndex maps each mapped target field to its source column position.
type ColumnIndex map[string]int

// ResolveColumns converts a mapping into column positions. Unmapped entries
// are omitted; a header absent from headers is an error.
func ResolveColumns(mapping []FieldMapping, headers []string) (ColumnIndex, error) {
	idx := make(ColumnIndex, len(mapping))
	for _, m := range mapping {
		if !m.Mapped() {
			continue
		}
		pos := headerIndex(headers, m.SourceHeader)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownHeader, m.SourceHeader)
		}
		idx[m.TargetField] = pos
	}
	return idx, nil
}

// headerIndex returns the position of the first header equal to name.
func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func cellAt(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return row[pos]
}
