package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// TemplateContentType is the MIME type of generated templates.
const TemplateContentType = "text/csv"

// TemplateFile is a generated template ready for download.
type TemplateFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// TemplateFileName returns the suggested download name for an entity type.
func TemplateFileName(t EntityType) string {
	return fmt.Sprintf("modele_import_%s.csv", t)
}

// Template returns a comma-delimited sample file for t: one header row of
// field labels followed by the entity's two example rows.
func Template(t EntityType) (string, error) {
	var buf bytes.Buffer
	if err := WriteTemplate(&buf, t, DelimiterComma); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteTemplate writes the template for t to w using comma as delimiter.
func WriteTemplate(w io.Writer, t EntityType, comma rune) error {
	def, err := Lookup(t)
	if err != nil {
		return err
	}
	if err := (Options{Delimiter: comma}).Validate(); err != nil {
		return err
	}

	header := make([]string, len(def.Fields))
	for i, spec := range def.Fields {
		header[i] = spec.Label
	}

	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write template header: %w", err)
	}
	for _, row := range def.Examples {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write template row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DownloadTemplate builds the downloadable template file for t.
func DownloadTemplate(t EntityType) (TemplateFile, error) {
	content, err := Template(t)
	if err != nil {
		return TemplateFile{}, err
	}
	return TemplateFile{
		Name:        TemplateFileName(t),
		ContentType: TemplateContentType,
		Content:     []byte(content),
	}, nil
}
