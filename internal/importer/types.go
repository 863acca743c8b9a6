package importer

import (
	"context"
	"fmt"
)

// EntityType identifies a registered schema ("prospect", "contact", ...).
type EntityType string

// FieldSpec describes one target attribute of an entity type.
type FieldSpec struct {
	Name     string // Identifier used as the Record key
	Label    string // Display name, also used for header matching
	Required bool   // Row is invalid unless this field has a non-blank value
}

// FieldMapping associates one target field with a source column.
type FieldMapping struct {
	TargetField  string `json:"targetField"`
	SourceHeader string `json:"sourceHeader"` // Empty when unmapped
	SampleValue  string `json:"sampleValue"`  // Value from the first data row
}

// Mapped reports whether the entry points at a source column.
func (m FieldMapping) Mapped() bool {
	return m.SourceHeader != ""
}

// Record is one mapped row keyed by FieldSpec names.
type Record map[string]string

// Stats summarizes a validation pass.
// Valid + Invalid always equals Total.
type Stats struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
}

// Stage is one step of the import workflow.
type Stage string

const (
	StageSelectFile Stage = "select_file"
	StageMapFields  Stage = "map_fields"
	StageVerify     Stage = "verify"
	StageDone       Stage = "done"
)

// Delimiters accepted by the tokenizer.
const (
	DelimiterComma     = ','
	DelimiterSemicolon = ';'
	DelimiterTab       = '\t'
	DelimiterPipe      = '|'
)

// Options controls how a file is decoded and tokenized.
type Options struct {
	Delimiter      rune   `json:"delimiter"`
	HasHeaders     bool   `json:"hasHeaders"`
	SkipEmptyLines bool   `json:"skipEmptyLines"`
	TrimValues     bool   `json:"trimValues"`
	Encoding       string `json:"encoding"` // WHATWG label, "" means UTF-8
}

// DefaultOptions returns the options used when a host supplies none.
func DefaultOptions() Options {
	return Options{
		Delimiter:      DelimiterComma,
		HasHeaders:     true,
		SkipEmptyLines: true,
		TrimValues:     true,
		Encoding:       "utf-8",
	}
}

// Validate checks that the options can drive the tokenizer.
func (o Options) Validate() error {
	switch o.Delimiter {
	case DelimiterComma, DelimiterSemicolon, DelimiterTab, DelimiterPipe:
	default:
		return fmt.Errorf("%w: unsupported delimiter %q", ErrInvalidOptions, o.Delimiter)
	}
	return nil
}

// ParseDelimiter converts a configuration value into a delimiter rune.
// Accepts the literal character or the names "comma", "semicolon", "tab"
// and "pipe". The two-character escape `\t` is accepted for tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case ",", "comma":
		return DelimiterComma, nil
	case ";", "semicolon":
		return DelimiterSemicolon, nil
	case "\t", `\t`, "tab":
		return DelimiterTab, nil
	case "|", "pipe":
		return DelimiterPipe, nil
	}
	return 0, fmt.Errorf("%w: unsupported delimiter %q", ErrInvalidOptions, s)
}

// Batch is the unit handed to a Sink on commit.
type Batch struct {
	SessionID string
	Entity    EntityType
	FileName  string
	Records   []Record
}

// Sink receives the valid records of a completed import.
// Retries, batching and rollback are the sink's concern.
type Sink interface {
	Commit(ctx context.Context, batch Batch) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, batch Batch) error

// Commit calls f(ctx, batch).
func (f SinkFunc) Commit(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}
