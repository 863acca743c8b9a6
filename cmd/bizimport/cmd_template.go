package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

func newTemplateCmd(a *app) *cobra.Command {
	var (
		delimiter string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "template <entity>",
		Short: "Write a sample import file for an entity",
		Long: `Writes the field labels of an entity as a header row followed by two
example rows. With --output pointing at a directory the file is named
modele_import_<entity>.csv.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := importer.EntityType(args[0])

			comma := rune(importer.DelimiterComma)
			if delimiter != "" {
				var err error
				if comma, err = importer.ParseDelimiter(delimiter); err != nil {
					return err
				}
			}

			if output == "" {
				return importer.WriteTemplate(cmd.OutOrStdout(), entity, comma)
			}

			path := output
			if info, err := os.Stat(output); err == nil && info.IsDir() {
				path = filepath.Join(output, importer.TemplateFileName(entity))
			}
			if err := writeFile(path, func(w io.Writer) error {
				return importer.WriteTemplate(w, entity, comma)
			}); err != nil {
				return err
			}

			a.logger.Info("template written", "entity", entity, "path", path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&delimiter, "delimiter", "d", "", "Delimiter: comma, semicolon, tab or pipe")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default: stdout)")
	return cmd
}

// writeFile creates path and removes it again if write fails.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
