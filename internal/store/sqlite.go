package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"insight-agents/internal/document"
)

// SQLiteStore keeps records in a single SQLite file, for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			filetype TEXT NOT NULL,
			size_kb REAL NOT NULL,
			upload_timestamp TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			detected_columns TEXT NOT NULL DEFAULT '[]',
			raw_shape TEXT NOT NULL,
			raw_data TEXT NOT NULL,
			summary TEXT,
			status TEXT NOT NULL,
			last_error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS records_created_at_idx ON records (created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

const sqliteRecordColumns = `id, filename, filetype, size_kb, upload_timestamp, record_count, detected_columns,
	raw_shape, raw_data, summary, status, last_error, created_at, updated_at`

func (s *SQLiteStore) CreateRecord(ctx context.Context, meta document.Metadata, data document.Data) (Record, error) {
	rec := newRecord(meta, data, time.Now().UTC())
	cols, err := json.Marshal(rec.Metadata.DetectedColumns)
	if err != nil {
		return Record{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records(id, filename, filetype, size_kb, upload_timestamp, record_count, detected_columns,
			raw_shape, raw_data, status, created_at, updated_at, seq)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records))`,
		rec.ID.String(), meta.Filename, string(meta.FileType), meta.SizeKB, formatTime(meta.UploadTimestamp),
		meta.RecordCount, string(cols), string(data.Shape), string(data.Raw), string(rec.Status),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRecordColumns+` FROM records WHERE id=?`, id.String())
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, limit, offset int) ([]Record, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM records ORDER BY seq DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSummary(ctx context.Context, id uuid.UUID, upd SummaryUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, upd.Status)
	}
	sum, err := encodeSummary(upd.Summary)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET status=?1, summary=COALESCE(?2, summary), last_error=?3, updated_at=?4
		WHERE id=?5 AND (?1 = 'processing' OR status = 'processing')`,
		string(upd.Status), sum, nullString(upd.LastError), formatTime(time.Now().UTC()), id.String())
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM records WHERE id=?`, id.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, upd.Status)
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id=?`, id.String())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanSQLiteRecord(row rowScanner) (Record, error) {
	var (
		rec                         Record
		id, filetype, shape, status string
		uploaded, created, updated  string
		columns, raw                string
		sum, lastError              sql.NullString
	)
	err := row.Scan(&id, &rec.Metadata.Filename, &filetype, &rec.Metadata.SizeKB, &uploaded,
		&rec.Metadata.RecordCount, &columns, &shape, &raw, &sum, &status, &lastError, &created, &updated)
	if err != nil {
		return Record{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("bad record id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(columns), &rec.Metadata.DetectedColumns); err != nil {
		return Record{}, fmt.Errorf("decode detected_columns: %w", err)
	}
	if rec.Metadata.DetectedColumns == nil {
		rec.Metadata.DetectedColumns = []string{}
	}
	if rec.Metadata.UploadTimestamp, err = parseTime(uploaded); err != nil {
		return Record{}, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return Record{}, err
	}
	rec.Metadata.FileType = document.FileType(filetype)
	rec.RawData = decodeData(shape, []byte(raw))
	rec.Status = Status(status)
	rec.LastError = stringPtr(lastError)
	if sum.Valid {
		if rec.Summary, err = decodeSummary([]byte(sum.String)); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
