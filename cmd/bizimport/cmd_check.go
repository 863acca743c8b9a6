package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bizimport/internal/importer"
	"github.com/JonMunkholm/bizimport/internal/preset"
	"github.com/JonMunkholm/bizimport/internal/sink"
)

// runFlags are shared by check and import.
type runFlags struct {
	entity     string
	presetPath string
	delimiter  string
	encoding   string
	noHeaders  bool
	mappings   []string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.entity, "entity", "e", "", "Entity type (default from IMPORT_DEFAULT_ENTITY or the preset)")
	cmd.Flags().StringVarP(&f.presetPath, "preset", "p", "", "YAML preset with entity, options and mapping")
	cmd.Flags().StringVarP(&f.delimiter, "delimiter", "d", "", "Delimiter: comma, semicolon, tab or pipe")
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "File encoding label, e.g. windows-1252")
	cmd.Flags().BoolVar(&f.noHeaders, "no-headers", false, "The first line is data, not headers")
	cmd.Flags().StringArrayVarP(&f.mappings, "map", "m", nil, "Map a field to a column: field=Header (repeatable)")
}

// overrides turns the flags into option overrides.
func (f *runFlags) overrides() preset.Options {
	var o preset.Options
	if f.delimiter != "" {
		o.Delimiter = &f.delimiter
	}
	if f.encoding != "" {
		o.Encoding = &f.encoding
	}
	if f.noHeaders {
		hasHeaders := false
		o.HasHeaders = &hasHeaders
	}
	return o
}

func newCheckCmd(a *app) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Map and validate a file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := a.prepare(cmd.Context(), cmd.OutOrStdout(), args[0], &flags, sink.NewLog(a.logger))
			if wf != nil {
				printReport(cmd.OutOrStdout(), wf.Session())
			}
			return userError(err)
		},
	}
	flags.register(cmd)
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a file and commit its valid rows into the sink",
		Long: `Runs the same steps as check, then hands the valid rows to the sink
selected by SINK_DRIVER. Rows failing validation are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			target, closeSink, err := a.openSink(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			wf, err := a.prepare(ctx, out, args[0], &flags, target)
			if wf != nil {
				printReport(out, wf.Session())
			}
			if err != nil {
				return userError(err)
			}

			if err := wf.Commit(ctx); err != nil {
				return userError(err)
			}

			session := wf.Session()
			fmt.Fprintf(out, "imported %d %s into %s (session %s)\n",
				session.Stats.Valid, plural(session.Stats.Valid, "record"), a.cfg.Sink.Driver, session.ID)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// prepare runs a file through reading, mapping and verification. The
// workflow is returned even on failure so the caller can report it.
func (a *app) prepare(ctx context.Context, out io.Writer, path string, flags *runFlags, target importer.Sink) (*importer.Workflow, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var p *preset.Preset
	if flags.presetPath != "" {
		var err error
		if p, err = preset.Load(flags.presetPath); err != nil {
			return nil, err
		}
	}

	entity := importer.EntityType(flags.entity)
	if entity == "" && p != nil {
		entity = p.Entity
	}
	if entity == "" {
		entity = importer.EntityType(a.cfg.Import.DefaultEntity)
	}

	base, err := a.cfg.ImportOptions()
	if err != nil {
		return nil, err
	}
	if p != nil {
		if base, err = p.Options.Apply(base); err != nil {
			return nil, err
		}
	}
	opts, err := flags.overrides().Apply(base)
	if err != nil {
		return nil, err
	}

	wf, err := importer.NewWorkflow(uuid.NewString(), entity, opts, importer.WorkflowConfig{
		Sink:        target,
		MaxFileSize: a.cfg.Import.MaxFileSize,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := wf.ReadFile(ctx, filepath.Base(path), f); err != nil {
		return wf, err
	}

	if p != nil {
		// Entity and options are already in place; only the mapping is left
		mappingOnly := &preset.Preset{Mapping: p.Mapping}
		skipped, err := mappingOnly.Apply(ctx, wf)
		if err != nil {
			return wf, err
		}
		for _, field := range skipped {
			fmt.Fprintf(out, "preset column %q for %s not found, keeping automatic mapping\n", p.Mapping[field], field)
		}
	}

	for _, m := range flags.mappings {
		field, header, ok := strings.Cut(m, "=")
		if !ok || field == "" {
			return wf, fmt.Errorf("invalid --map %q, want field=Header", m)
		}
		if err := wf.Remap(ctx, field, header); err != nil {
			return wf, err
		}
	}

	return wf, wf.Verify(ctx)
}

// printReport writes the mapping, stats and rejected rows of a session.
func printReport(w io.Writer, s importer.Session) {
	def, err := importer.Lookup(s.Entity)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "File:    %s\nEntity:  %s\nStage:   %s\n\n", s.FileName, s.Entity, s.Stage)

	if len(s.Mapping) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FIELD\tCOLUMN\tSAMPLE")
		for _, m := range s.Mapping {
			spec, _ := def.Field(m.TargetField)
			label := spec.Label
			if spec.Required {
				label += "*"
			}
			column := "-"
			if m.Mapped() {
				column = m.SourceHeader
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", label, column, m.SampleValue)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total %d, valid %d, invalid %d, duplicates %d\n",
		s.Stats.Total, s.Stats.Valid, s.Stats.Invalid, s.Stats.Duplicates)

	if len(s.Rejected) > 0 {
		fmt.Fprintln(w, "Rejected:")
		for _, row := range s.Rejected {
			fmt.Fprintf(w, "  %s\n", row.Reason())
		}
	}
}

// userError prefixes err with its user-facing message when it has one.
func userError(err error) error {
	if err == nil || !importer.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("%s: %w", importer.FormatUserError(err), err)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
