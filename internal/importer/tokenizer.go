package importer

// tokenizer.go turns delimited text into a RowTable.
//
// The text is processed one physical line at a time, so a quoted value
// cannot contain a newline: such a value is split across two rows.

import (
	"fmt"
	"strings"
)

const (
	quoteChar  = '"'
	escapeChar = '\\'
)

// RowTable is the rectangular-ish result of tokenizing a file.
// Rows may differ in width; missing cells read as empty.
type RowTable struct {
	Rows       [][]string
	HasHeaders bool
}

// Headers returns the header row. Without a header row, names are
// synthesized as "Column 1".."Column N" for the widest row.
func (t *RowTable) Headers() []string {
	if t == nil || len(t.Rows) == 0 {
		return nil
	}
	if t.HasHeaders {
		return t.Rows[0]
	}

	width := 0
	for _, row := range t.Rows {
		width = max(width, len(row))
	}
	headers := make([]string, width)
	for i := range headers {
		headers[i] = fmt.Sprintf("Column %d", i+1)
	}
	return headers
}

// DataRows returns the rows after the header row.
func (t *RowTable) DataRows() [][]string {
	if t == nil || len(t.Rows) == 0 {
		return nil
	}
	if t.HasHeaders {
		return t.Rows[1:]
	}
	return t.Rows
}

// FirstDataRow returns the first data row, or nil.
func (t *RowTable) FirstDataRow() []string {
	rows := t.DataRows()
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

// lineOffset is the 1-indexed file line of DataRows()[0].
func (t *RowTable) lineOffset() int {
	if t.HasHeaders {
		return 2
	}
	return 1
}

// Tokenize splits text into rows and cells according to opts.
// Returns ErrEmptyOrMalformed when no line remains after skipping.
func Tokenize(text string, opts Options) (*RowTable, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	lines := splitLines(text)
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		if opts.SkipEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, parseLine(line, opts.Delimiter, opts.TrimValues))
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no lines to import", ErrEmptyOrMalformed)
	}

	return &RowTable{Rows: rows, HasHeaders: opts.HasHeaders}, nil
}

// splitLines splits on '\n', drops a trailing '\r' per line, and ignores
// the empty line a terminal newline would produce.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// parseLine splits one physical line. A quote toggles the quoted state
// unless the previous character is the escape marker; the delimiter only
// separates cells outside quotes.
func parseLine(line string, delimiter rune, trim bool) []string {
	var (
		cells    []string
		current  strings.Builder
		inQuotes bool
		prev     rune
	)

	for _, r := range line {
		switch {
		case r == quoteChar && prev != escapeChar:
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == delimiter && !inQuotes:
			cells = append(cells, finishCell(current.String(), trim))
			current.Reset()
		default:
			current.WriteRune(r)
		}
		prev = r
	}

	return append(cells, finishCell(current.String(), trim))
}

// finishCell trims (optionally) and then strips one leading and one
// trailing quote.
func finishCell(cell string, trim bool) string {
	if trim {
		cell = strings.TrimSpace(cell)
	}
	cell = strings.TrimPrefix(cell, string(quoteChar))
	cell = strings.TrimSuffix(cell, string(quoteChar))
	return cell
}
