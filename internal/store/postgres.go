package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"insight-agents/internal/document"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Gateway and summarizer both start against the same database.
	const lockID = 727100401

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		// raw_data is JSON rather than JSONB so object key order survives.
		`CREATE TABLE IF NOT EXISTS records (
			id UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			filetype TEXT NOT NULL,
			size_kb DOUBLE PRECISION NOT NULL,
			upload_timestamp TIMESTAMPTZ NOT NULL,
			record_count INT NOT NULL,
			detected_columns TEXT[] NOT NULL DEFAULT '{}',
			raw_shape TEXT NOT NULL,
			raw_data JSON NOT NULL,
			summary JSONB,
			status TEXT NOT NULL,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS records_created_at_idx ON records (created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS records_status_idx ON records (status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const pgRecordColumns = `id, filename, filetype, size_kb, upload_timestamp, record_count, detected_columns,
	raw_shape, raw_data, summary, status, last_error, created_at, updated_at`

func (s *PostgresStore) CreateRecord(ctx context.Context, meta document.Metadata, data document.Data) (Record, error) {
	rec := newRecord(meta, data, time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records(id, filename, filetype, size_kb, upload_timestamp, record_count, detected_columns,
			raw_shape, raw_data, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9::json,$10,$11,$11)`,
		rec.ID, meta.Filename, string(meta.FileType), meta.SizeKB, meta.UploadTimestamp, meta.RecordCount,
		pq.Array(rec.Metadata.DetectedColumns), string(data.Shape), string(data.Raw), rec.Status, rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgRecordColumns+` FROM records WHERE id=$1`, id)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, limit, offset int) ([]Record, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgRecordColumns+` FROM records ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, id uuid.UUID, upd SummaryUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, upd.Status)
	}
	sum, err := encodeSummary(upd.Summary)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET status=$2, summary=COALESCE($3::jsonb, summary), last_error=$4, updated_at=now()
		WHERE id=$1 AND ($2 = 'processing' OR status = 'processing')`,
		id, string(upd.Status), sum, nullString(upd.LastError))
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM records WHERE id=$1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, upd.Status)
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		filetype  string
		columns   []string
		shape     string
		raw       []byte
		sum       []byte
		status    string
		lastError sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Metadata.Filename, &filetype, &rec.Metadata.SizeKB, &rec.Metadata.UploadTimestamp,
		&rec.Metadata.RecordCount, pq.Array(&columns), &shape, &raw, &sum, &status, &lastError,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if columns == nil {
		columns = []string{}
	}
	rec.Metadata.FileType = document.FileType(filetype)
	rec.Metadata.DetectedColumns = columns
	rec.Metadata.UploadTimestamp = rec.Metadata.UploadTimestamp.UTC()
	rec.RawData = decodeData(shape, json.RawMessage(raw))
	rec.Status = Status(status)
	rec.LastError = stringPtr(lastError)
	if rec.Summary, err = decodeSummary(sum); err != nil {
		return Record{}, err
	}
	return rec, nil
}
