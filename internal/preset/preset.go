// Package preset loads saved import settings from YAML.
//
// A preset names the target entity, tokenizer overrides and the column
// chosen for each field, so that a file exported the same way every month
// can be imported without mapping it by hand:
//
//	name: crm-export
//	entity: prospect
//	options:
//	  delimiter: semicolon
//	  encoding: windows-1252
//	mapping:
//	  company: Société
//	  email: Courriel
package preset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

// ErrInvalidPreset is returned for presets that cannot be parsed or that
// reference unknown entities or fields.
var ErrInvalidPreset = errors.New("invalid import preset")

// MatchThreshold is the minimum MatchScore for a preset to be suggested.
const MatchThreshold = 0.5

// Preset is a saved set of import settings.
type Preset struct {
	Name    string              `yaml:"name" json:"name"`
	Entity  importer.EntityType `yaml:"entity" json:"entity"`
	Options Options             `yaml:"options" json:"options"`
	Mapping map[string]string   `yaml:"mapping" json:"mapping"` // Field name -> source header
}

// Options overrides part of importer.Options. Nil fields keep the
// current value.
type Options struct {
	Delimiter      *string `yaml:"delimiter" json:"delimiter"`
	HasHeaders     *bool   `yaml:"hasHeaders" json:"hasHeaders"`
	SkipEmptyLines *bool   `yaml:"skipEmptyLines" json:"skipEmptyLines"`
	TrimValues     *bool   `yaml:"trimValues" json:"trimValues"`
	Encoding       *string `yaml:"encoding" json:"encoding"`
}

// IsZero reports whether no option is overridden.
func (o Options) IsZero() bool {
	return o == Options{}
}

// Apply returns base with the overrides applied.
func (o Options) Apply(base importer.Options) (importer.Options, error) {
	if o.Delimiter != nil {
		d, err := importer.ParseDelimiter(*o.Delimiter)
		if err != nil {
			return base, err
		}
		base.Delimiter = d
	}
	if o.HasHeaders != nil {
		base.HasHeaders = *o.HasHeaders
	}
	if o.SkipEmptyLines != nil {
		base.SkipEmptyLines = *o.SkipEmptyLines
	}
	if o.TrimValues != nil {
		base.TrimValues = *o.TrimValues
	}
	if o.Encoding != nil {
		base.Encoding = *o.Encoding
	}
	return base, nil
}

// Parse decodes a YAML preset and checks it against the registry.
// Unknown keys are rejected.
func Parse(data []byte) (*Preset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Preset
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidPreset)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses the preset file at path.
func Load(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks that the entity and every mapped field exist and that
// the option overrides are usable.
func (p *Preset) Validate() error {
	if p.Entity != "" {
		def, err := importer.Lookup(p.Entity)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPreset, err)
		}
		for _, field := range p.Fields() {
			if _, ok := def.Field(field); !ok {
				return fmt.Errorf("%w: entity %s has no field %q", ErrInvalidPreset, p.Entity, field)
			}
		}
	}
	if _, err := p.Options.Apply(importer.DefaultOptions()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPreset, err)
	}
	return nil
}

// Fields returns the mapped field names in sorted order.
func (p *Preset) Fields() []string {
	fields := make([]string, 0, len(p.Mapping))
	for f := range p.Mapping {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Apply drives wf to the preset: it switches entity, re-parses with the
// option overrides, then remaps every field whose column is present in
// the loaded file. Fields pointing at absent columns are left to the
// automatic mapping and reported in the returned list. The mapping is
// applied only when every entry is valid; entity and option changes made
// before a failure stay applied.
func (p *Preset) Apply(ctx context.Context, wf *importer.Workflow) ([]string, error) {
	if p.Entity != "" && p.Entity != wf.Session().Entity {
		if err := wf.SelectEntity(ctx, p.Entity); err != nil {
			return nil, err
		}
	}

	if !p.Options.IsZero() {
		opts, err := p.Options.Apply(wf.Session().Options)
		if err != nil {
			return nil, err
		}
		if err := wf.Configure(ctx, opts); err != nil {
			return nil, err
		}
	}

	if wf.Stage() == importer.StageSelectFile {
		return nil, nil
	}

	present := make(map[string]bool)
	for _, h := range wf.Session().Headers() {
		present[h] = true
	}

	var skipped, fields []string
	for _, field := range p.Fields() {
		header := p.Mapping[field]
		if header != "" && !present[header] {
			skipped = append(skipped, field)
			continue
		}
		fields = append(fields, field)
	}

	// Check the whole mapping first so a bad entry leaves the workflow's
	// mapping untouched.
	session := wf.Session()
	mapping := session.Mapping
	for _, field := range fields {
		var err error
		if mapping, err = importer.Remap(mapping, field, p.Mapping[field], session.Headers(), nil); err != nil {
			return skipped, err
		}
	}

	for _, field := range fields {
		if err := wf.Remap(ctx, field, p.Mapping[field]); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

// MatchScore returns the fraction of the preset's columns found in
// headers, ignoring case and surrounding spaces.
func (p *Preset) MatchScore(headers []string) float64 {
	var want []string
	for _, h := range p.Mapping {
		if h != "" {
			want = append(want, h)
		}
	}
	if len(want) == 0 {
		return 0
	}

	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[strings.ToLower(strings.TrimSpace(h))] = true
	}

	matched := 0
	for _, h := range want {
		if have[strings.ToLower(strings.TrimSpace(h))] {
			matched++
		}
	}
	return float64(matched) / float64(len(want))
}

// Best returns the preset that best matches headers, or nil when none
// reaches MatchThreshold. Ties keep the earlier preset.
func Best(presets []*Preset, headers []string) *Preset {
	var (
		best  *Preset
		score float64
	)
	for _, p := range presets {
		if s := p.MatchScore(headers); s >= MatchThreshold && s > score {
			best, score = p, s
		}
	}
	return best
}
