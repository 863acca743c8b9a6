// Command bizimport runs imports from the command line: it prints entity
// schemas and templates, checks a file against a mapping, and commits
// valid records into the configured sink.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bizimport/internal/config"
	"github.com/JonMunkholm/bizimport/internal/importer"
	_ "github.com/JonMunkholm/bizimport/internal/importer/entities" // Register built-in entities
	"github.com/JonMunkholm/bizimport/internal/logging"
	"github.com/JonMunkholm/bizimport/internal/sink"
)

// app holds what every subcommand shares once the root has run.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	openSink func(ctx context.Context, cfg *config.Config) (importer.Sink, func(), error)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{openSink: sink.Open})
}

func newRootCmdWith(a *app) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "bizimport",
		Short:         "Import delimited files into business entities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional; real env vars win
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			a.cfg = cfg
			a.logger = logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")

	root.AddCommand(
		newEntitiesCmd(a),
		newTemplateCmd(a),
		newCheckCmd(a),
		newImportCmd(a),
	)
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	_, _ = io.WriteString(w, "Error: "+err.Error()+"\n")
}
