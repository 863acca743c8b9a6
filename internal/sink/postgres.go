package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

var copyColumns = []string{"id", "batch_id", "session_id", "entity_type", "file_name", "position", "data", "imported_at"}

// Postgres commits batches to a PostgreSQL table using COPY.
type Postgres struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// NewPostgres creates a sink writing to table through pool.
func NewPostgres(pool *pgxpool.Pool, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres sink requires a pool")
	}
	if table == "" {
		return nil, fmt.Errorf("postgres sink requires a table name")
	}
	return &Postgres{pool: pool, table: pgx.Identifier{table}}, nil
}

// EnsureSchema creates the records table and its index if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	name := p.table.Sanitize()
	index := pgx.Identifier{p.table[0] + "_entity_idx"}.Sanitize()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY,
			batch_id    UUID NOT NULL,
			session_id  TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			file_name   TEXT NOT NULL DEFAULT '',
			position    INTEGER NOT NULL,
			data        JSONB NOT NULL,
			imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, name),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (entity_type, imported_at)`, index, name),
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil
}

// Commit copies every record of batch in one transaction.
func (p *Postgres) Commit(ctx context.Context, batch importer.Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}

	rows, err := copyRows(batch, time.Now().UTC())
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, p.table, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy records: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy records: wrote %d of %d rows", n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CountSession returns how many records were committed by a session.
func (p *Postgres) CountSession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE session_id = $1", p.table.Sanitize())
	if err := p.pool.QueryRow(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// copyRows builds the COPY input for batch. All rows share one batch id.
func copyRows(batch importer.Batch, now time.Time) ([][]any, error) {
	batchID := pgtype.UUID{Bytes: uuid.New(), Valid: true}

	rows := make([][]any, len(batch.Records))
	for i, record := range batch.Records {
		data, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		rows[i] = []any{
			pgtype.UUID{Bytes: uuid.New(), Valid: true},
			batchID,
			batch.SessionID,
			string(batch.Entity),
			batch.FileName,
			int32(i),
			data,
			now,
		}
	}
	return rows, nil
}
