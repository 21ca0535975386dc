package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"insight-agents/internal/document"
	"insight-agents/internal/summary"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Record is the durable row tracking one upload's lifecycle.
type Record struct {
	ID        uuid.UUID
	Metadata  document.Metadata
	RawData   document.Data
	Summary   *summary.Result
	Status    Status
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SummaryUpdate is applied atomically to (summary, status, last_error).
// A nil Summary leaves the stored summary unchanged; a nil LastError clears it.
type SummaryUpdate struct {
	Status    Status
	Summary   *summary.Result
	LastError *string
}

// Store defines the persistence contract for processing records.
type Store interface {
	CreateRecord(ctx context.Context, meta document.Metadata, data document.Data) (Record, error)
	GetRecord(ctx context.Context, id uuid.UUID) (Record, error)
	ListRecords(ctx context.Context, limit, offset int) ([]Record, error)
	UpdateSummary(ctx context.Context, id uuid.UUID, upd SummaryUpdate) error
	DeleteRecord(ctx context.Context, id uuid.UUID) (bool, error)
	Ping(ctx context.Context) error
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func encodeSummary(r *summary.Result) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode summary: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeSummary(b []byte) (*summary.Result, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var r summary.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &r, nil
}

func decodeData(shape string, raw []byte) document.Data {
	return document.Data{Shape: document.Shape(shape), Raw: json.RawMessage(raw)}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func newRecord(meta document.Metadata, data document.Data, now time.Time) Record {
	if meta.DetectedColumns == nil {
		meta.DetectedColumns = []string{}
	}
	return Record{
		ID:        uuid.New(),
		Metadata:  meta,
		RawData:   data,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
