package preset_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/bizimport/internal/importer"
	"github.com/JonMunkholm/bizimport/internal/importer/entities"
	"github.com/JonMunkholm/bizimport/internal/preset"
)

const crmExport = `
name: crm-export
entity: prospect
options:
  delimiter: semicolon
mapping:
  company: Société
  contactName: Interlocuteur
  email: Courriel
`

func nopSink() importer.Sink {
	return importer.SinkFunc(func(context.Context, importer.Batch) error { return nil })
}

func TestParse(t *testing.T) {
	p, err := preset.Parse([]byte(crmExport))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Name != "crm-export" || p.Entity != entities.Prospect {
		t.Errorf("preset = %+v", p)
	}
	if diff := cmp.Diff([]string{"company", "contactName", "email"}, p.Fields()); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}

	opts, err := p.Options.Apply(importer.DefaultOptions())
	if err != nil {
		t.Fatalf("Options.Apply() error = %v", err)
	}
	want := importer.DefaultOptions()
	want.Delimiter = ';'
	if opts != want {
		t.Errorf("options = %+v, want %+v", opts, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "not yaml", doc: "mapping: [unclosed"},
		{name: "unknown key", doc: "entity: prospect\ncolumns: {}\n"},
		{name: "unknown entity", doc: "entity: invoice\n"},
		{name: "unknown field", doc: "entity: contact\nmapping:\n  fax: Fax\n"},
		{name: "bad delimiter", doc: "options:\n  delimiter: ':'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := preset.Parse([]byte(tt.doc)); !errors.Is(err, preset.ErrInvalidPreset) {
				t.Errorf("Parse() error = %v, want ErrInvalidPreset", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.yaml")
	if err := os.WriteFile(path, []byte(crmExport), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := preset.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "crm-export" {
		t.Errorf("Name = %q", p.Name)
	}

	if _, err := preset.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestApply(t *testing.T) {
	p, err := preset.Parse([]byte(crmExport))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wf, err := importer.NewWorkflow("p-1", entities.Contact, importer.DefaultOptions(), importer.WorkflowConfig{Sink: nopSink()})
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}
	ctx := context.Background()

	text := "Société;Interlocuteur;Courriel\nAcme Corp;Jane Doe;jane@acme.com\n"
	if err := wf.ReadFile(ctx, "export.csv", strings.NewReader(text)); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	skipped, err := p.Apply(ctx, wf)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped = %v, want none", skipped)
	}

	session := wf.Session()
	if session.Entity != entities.Prospect || session.Options.Delimiter != ';' {
		t.Errorf("entity %q delimiter %q", session.Entity, session.Options.Delimiter)
	}
	if err := wf.Verify(ctx); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	want := []importer.Record{{"company": "Acme Corp", "contactName": "Jane Doe", "email": "jane@acme.com"}}
	if diff := cmp.Diff(want, wf.Session().Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_SkipsAbsentColumns(t *testing.T) {
	p := &preset.Preset{Mapping: map[string]string{"email": "Courriel", "phone": "Portable"}}

	wf, err := importer.NewWorkflow("p-2", entities.Prospect, importer.DefaultOptions(), importer.WorkflowConfig{Sink: nopSink()})
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}
	ctx := context.Background()
	if err := wf.ReadFile(ctx, "leads.csv", strings.NewReader("company,contactName,Courriel\nAcme,Jane,j@acme.com\n")); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	skipped, err := p.Apply(ctx, wf)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if diff := cmp.Diff([]string{"phone"}, skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_InvalidMappingLeavesMapping(t *testing.T) {
	// "company" sorts first and is valid; "zone" is not a prospect field.
	p := &preset.Preset{Mapping: map[string]string{"company": "Courriel", "zone": "company"}}

	wf, err := importer.NewWorkflow("p-4", entities.Prospect, importer.DefaultOptions(), importer.WorkflowConfig{Sink: nopSink()})
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}
	ctx := context.Background()
	if err := wf.ReadFile(ctx, "leads.csv", strings.NewReader("company,contactName,Courriel\nAcme,Jane,j@acme.com\n")); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	before := wf.Session().Mapping

	if _, err := p.Apply(ctx, wf); !errors.Is(err, importer.ErrUnknownField) {
		t.Fatalf("Apply() error = %v, want ErrUnknownField", err)
	}
	if diff := cmp.Diff(before, wf.Session().Mapping); diff != "" {
		t.Errorf("mapping changed (-before +after):\n%s", diff)
	}
}

func TestApply_BeforeFile(t *testing.T) {
	p, err := preset.Parse([]byte(crmExport))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	wf, err := importer.NewWorkflow("p-3", entities.Contact, importer.DefaultOptions(), importer.WorkflowConfig{Sink: nopSink()})
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}

	if _, err := p.Apply(context.Background(), wf); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := wf.Session(); got.Entity != entities.Prospect || got.Options.Delimiter != ';' || got.Stage != importer.StageSelectFile {
		t.Errorf("session = %+v", got)
	}
}

func TestMatchScore(t *testing.T) {
	p := &preset.Preset{Mapping: map[string]string{"company": "Société", "email": "Courriel", "notes": ""}}

	tests := []struct {
		name    string
		headers []string
		want    float64
	}{
		{name: "all present", headers: []string{" courriel ", "SOCIÉTÉ"}, want: 1},
		{name: "half", headers: []string{"Courriel", "Company"}, want: 0.5},
		{name: "none", headers: []string{"a", "b"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.MatchScore(tt.headers); got != tt.want {
				t.Errorf("MatchScore() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := (&preset.Preset{}).MatchScore([]string{"a"}); got != 0 {
		t.Errorf("empty preset MatchScore() = %v, want 0", got)
	}
}

func TestBest(t *testing.T) {
	crm := &preset.Preset{Name: "crm", Mapping: map[string]string{"company": "Société", "email": "Courriel"}}
	erp := &preset.Preset{Name: "erp", Mapping: map[string]string{"company": "Account", "email": "Mail", "phone": "Tel"}}

	if got := preset.Best([]*preset.Preset{erp, crm}, []string{"Société", "Courriel"}); got != crm {
		t.Errorf("Best() = %v, want crm", got)
	}
	if got := preset.Best([]*preset.Preset{erp, crm}, []string{"Account"}); got != nil {
		t.Errorf("Best() = %v, want nil below threshold", got)
	}
}
