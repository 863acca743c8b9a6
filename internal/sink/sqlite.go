package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

// SQLite commits batches to a local SQLite database.
type SQLite struct {
	db    *sql.DB
	table string // quoted
}

// OpenSQLite opens (or creates) the database at path and ensures the
// records table exists. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path, table string) (*SQLite, error) {
	if table == "" {
		return nil, fmt.Errorf("sqlite sink requires a table name")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer; sharing one connection also keeps an
	// in-memory database alive for the lifetime of the sink.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, table: pgx.Identifier{table}.Sanitize()}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		data TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Commit inserts every record of batch in one transaction.
func (s *SQLite) Commit(ctx context.Context, batch importer.Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, batch_id, session_id, entity_type, file_name, position, data, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	batchID := uuid.NewString()
	now := time.Now().UTC()
	for i, record := range batch.Records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), batchID, batch.SessionID, string(batch.Entity), batch.FileName, i, string(data), now,
		); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SessionRecords returns the records committed by a session in batch order.
func (s *SQLite) SessionRecords(ctx context.Context, sessionID string) ([]importer.Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT data FROM %s WHERE session_id = ? ORDER BY imported_at, batch_id, position`, s.table), sessionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []importer.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var record importer.Record
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
