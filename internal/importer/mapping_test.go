package importer_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

func TestAutoMap(t *testing.T) {
	specs := []importer.FieldSpec{
		{Name: "company", Label: "Company", Required: true},
		{Name: "contactName", Label: "Contact Name", Required: true},
		{Name: "email", Label: "Email", Required: true},
		{Name: "phone", Label: "Phone"},
	}

	tests := []struct {
		name    string
		headers []string
		sample  []string
		want    []importer.FieldMapping
	}{
		{
			name:    "exact names",
			headers: []string{"company", "contactName", "email"},
			sample:  []string{"Acme Corp", "Jane Doe", "jane@acme.com"},
			want: []importer.FieldMapping{
				{TargetField: "company", SourceHeader: "company", SampleValue: "Acme Corp"},
				{TargetField: "contactName", SourceHeader: "contactName", SampleValue: "Jane Doe"},
				{TargetField: "email", SourceHeader: "email", SampleValue: "jane@acme.com"},
				{TargetField: "phone"},
			},
		},
		{
			name:    "labels and case",
			headers: []string{"E-MAIL", "Primary Contact Name", "COMPANY NAME", "Work Phone"},
			sample:  []string{"x", "Jane", "Acme", "0102"},
			want: []importer.FieldMapping{
				{TargetField: "company", SourceHeader: "COMPANY NAME", SampleValue: "Acme"},
				{TargetField: "contactName", SourceHeader: "Primary Contact Name", SampleValue: "Jane"},
				{TargetField: "email"},
				{TargetField: "phone", SourceHeader: "Work Phone", SampleValue: "0102"},
			},
		},
		{
			name:    "first matching header wins",
			headers: []string{"company id", "company"},
			sample:  []string{"42", "Acme"},
			want: []importer.FieldMapping{
				{TargetField: "company", SourceHeader: "company id", SampleValue: "42"},
				{TargetField: "contactName"},
				{TargetField: "email"},
				{TargetField: "phone"},
			},
		},
		{
			name:    "header may serve several fields",
			headers: []string{"company email phone"},
			sample:  nil,
			want: []importer.FieldMapping{
				{TargetField: "company", SourceHeader: "company email phone"},
				{TargetField: "contactName"},
				{TargetField: "email", SourceHeader: "company email phone"},
				{TargetField: "phone", SourceHeader: "company email phone"},
			},
		},
		{
			name:    "short sample row",
			headers: []string{"company", "email"},
			sample:  []string{"Acme"},
			want: []importer.FieldMapping{
				{TargetField: "company", SourceHeader: "company", SampleValue: "Acme"},
				{TargetField: "contactName"},
				{TargetField: "email", SourceHeader: "email"},
				{TargetField: "phone"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := importer.AutoMap(tt.headers, specs, tt.sample)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("AutoMap() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemap(t *testing.T) {
	headers := []string{"org", "person", "mail"}
	sample := []string{"Acme", "Jane", "jane@acme.com"}
	mapping := []importer.FieldMapping{
		{TargetField: "company"},
		{TargetField: "email", SourceHeader: "person", SampleValue: "Jane"},
	}

	got, err := importer.Remap(mapping, "email", "mail", headers, sample)
	if err != nil {
		t.Fatalf("Remap() error = %v", err)
	}
	want := []importer.FieldMapping{
		{TargetField: "company"},
		{TargetField: "email", SourceHeader: "mail", SampleValue: "jane@acme.com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Remap() mismatch (-want +got):\n%s", diff)
	}
	if mapping[1].SourceHeader != "person" {
		t.Error("Remap() modified its input")
	}

	cleared, err := importer.Remap(got, "email", "", headers, sample)
	if err != nil {
		t.Fatalf("Remap(clear) error = %v", err)
	}
	if cleared[1].Mapped() || cleared[1].SampleValue != "" {
		t.Errorf("Remap(clear) = %+v, want an unmapped entry", cleared[1])
	}
}

func TestRemap_Errors(t *testing.T) {
	mapping := []importer.FieldMapping{{TargetField: "company"}}

	tests := []struct {
		name    string
		field   string
		header  string
		wantErr error
	}{
		{name: "unknown field", field: "nickname", header: "org", wantErr: importer.ErrUnknownField},
		{name: "unknown header", field: "company", header: "organisation", wantErr: importer.ErrUnknownHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := importer.Remap(mapping, tt.field, tt.header, []string{"org"}, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Remap() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveColumns(t *testing.T) {
	mapping := []importer.FieldMapping{
		{TargetField: "company", SourceHeader: "org"},
		{TargetField: "email"},
		{TargetField: "phone", SourceHeader: "tel"},
	}

	got, err := importer.ResolveColumns(mapping, []string{"tel", "org"})
	if err != nil {
		t.Fatalf("ResolveColumns() error = %v", err)
	}
	want := importer.ColumnIndex{"company": 1, "phone": 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ResolveColumns() mismatch (-want +got):\n%s", diff)
	}

	if _, err := importer.ResolveColumns(mapping, []string{"org"}); !errors.Is(err, importer.ErrUnknownHeader) {
		t.Errorf("ResolveColumns() error = %v, want ErrUnknownHeader", err)
	}
}
