package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight-agents/internal/document"
)

// MemoryStore is an in-process Store for development and tests. Records are lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]memoryEntry
	seq     int64
	now     func() time.Time
}

type memoryEntry struct {
	rec Record
	seq int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]memoryEntry), now: time.Now}
}

func (s *MemoryStore) CreateRecord(_ context.Context, meta document.Metadata, data document.Data) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := newRecord(meta, data, s.now().UTC())
	s.seq++
	s.records[rec.ID] = memoryEntry{rec: cloneRecord(rec), seq: s.seq}
	return rec, nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(e.rec), nil
}

func (s *MemoryStore) ListRecords(_ context.Context, limit, offset int) ([]Record, error) {
	limit, offset = clampPage(limit, offset)
	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })
	out := []Record{}
	for i := offset; i < len(entries) && len(out) < limit; i++ {
		out = append(out, cloneRecord(entries[i].rec))
	}
	return out, nil
}

func (s *MemoryStore) UpdateSummary(_ context.Context, id uuid.UUID, upd SummaryUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, upd.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(e.rec.Status, upd.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.rec.Status, upd.Status)
	}
	e.rec.Status = upd.Status
	if upd.Summary != nil {
		sum := *upd.Summary
		e.rec.Summary = &sum
	}
	e.rec.LastError = nil
	if upd.LastError != nil {
		msg := *upd.LastError
		e.rec.LastError = &msg
	}
	e.rec.UpdatedAt = s.now().UTC()
	s.records[id] = e
	return nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func cloneRecord(r Record) Record {
	out := r
	out.Metadata.DetectedColumns = append([]string{}, r.Metadata.DetectedColumns...)
	out.RawData.Raw = append([]byte(nil), r.RawData.Raw...)
	if r.Summary != nil {
		sum := *r.Summary
		out.Summary = &sum
	}
	if r.LastError != nil {
		msg := *r.LastError
		out.LastError = &msg
	}
	return out
}
