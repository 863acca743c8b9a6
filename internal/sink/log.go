package sink

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

// Log is a sink that only logs what it receives. Useful for dry runs.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging sink. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Commit logs the batch summary and, at debug level, every record.
func (l *Log) Commit(ctx context.Context, batch importer.Batch) error {
	l.logger.InfoContext(ctx, "import batch received",
		"session_id", batch.SessionID,
		"entity", batch.Entity,
		"file", batch.FileName,
		"records", len(batch.Records),
	)
	for i, record := range batch.Records {
		l.logger.DebugContext(ctx, "import record", "position", i, "record", map[string]string(record))
	}
	return nil
}
