package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"insight-agents/internal/app"
	"insight-agents/internal/document"
	"insight-agents/internal/httputil"
	"insight-agents/internal/parser"
	"insight-agents/internal/queue"
	"insight-agents/internal/store"
	"insight-agents/internal/summary"
)

// multipartOverhead is the allowance for form boundaries and part headers on top of the file size limit.
const multipartOverhead = 64 << 10

const (
	enqueueAttempts = 3
	enqueueBackoff  = 200 * time.Millisecond
)

type uploadResponse struct {
	ID                  uuid.UUID         `json:"id"`
	Status              store.Status      `json:"status"`
	Metadata            document.Metadata `json:"metadata"`
	FileTypeDescription string            `json:"file_type_description"`
}

type listItem struct {
	ID        uuid.UUID         `json:"id"`
	Status    store.Status      `json:"status"`
	Metadata  document.Metadata `json:"metadata"`
	AISummary *summary.Result   `json:"ai_summary"`
}

type detailResponse struct {
	ID            uuid.UUID         `json:"id"`
	Status        store.Status      `json:"status"`
	Metadata      document.Metadata `json:"metadata"`
	RawParsedData document.Data     `json:"raw_parsed_data"`
	AISummary     *summary.Result   `json:"ai_summary"`
	LastError     *string           `json:"last_error"`
}

func newDetail(rec store.Record) detailResponse {
	return detailResponse{
		ID:            rec.ID,
		Status:        rec.Status,
		Metadata:      rec.Metadata,
		RawParsedData: rec.RawData,
		AISummary:     rec.Summary,
		LastError:     rec.LastError,
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tooLarge := &http.MaxBytesError{Limit: maxFileSize}

		// Reject before reading when the declared body cannot fit.
		if r.ContentLength > maxFileSize+multipartOverhead {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), tooLarge, 0)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+multipartOverhead)

		file, header, err := r.FormFile("file")
		if err != nil {
			status := httputil.StatusFor(err)
			if status != http.StatusRequestEntityTooLarge {
				status = http.StatusBadRequest
			}
			httputil.Fail(deps.Log, w, `no file uploaded; use form-data field "file"`, err, status)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), tooLarge, 0)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if err := parser.CheckAccepted(header.Filename, contentType); err != nil {
			httputil.Fail(deps.Log, w, "unsupported file type", err, 0)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, 0)
			return
		}

		doc, err := deps.Parser.Parse(parser.Input{Buffer: content, Filename: header.Filename, MIMEType: contentType})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to parse file", err, 0)
			return
		}
		meta := document.NewMetadata(doc, header.Filename, int64(len(content)), time.Now())

		rec, err := deps.Store.CreateRecord(ctx, meta, doc.Data)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist record", err, http.StatusInternalServerError)
			return
		}

		status := rec.Status
		if err := enqueueSummarize(ctx, deps, rec.ID); err != nil {
			status = markFailed(ctx, deps, rec.ID, fmt.Sprintf("enqueue summarization: %v", err))
		}

		httputil.WriteJSON(w, http.StatusAccepted, uploadResponse{
			ID:                  rec.ID,
			Status:              status,
			Metadata:            rec.Metadata,
			FileTypeDescription: doc.Description,
		})
	}
}

func enqueueSummarize(ctx context.Context, deps app.Deps, id uuid.UUID) error {
	task, err := queue.NewSummarizeTask(id)
	if err != nil {
		return err
	}
	return queue.EnqueueWithRetry(ctx, deps.Queue, task, enqueueAttempts, enqueueBackoff)
}

// markFailed records a summarization that could not be scheduled. The upload itself still succeeds,
// so the returned status is what the client should see.
func markFailed(ctx context.Context, deps app.Deps, id uuid.UUID, reason string) store.Status {
	log := deps.Log.With("record_id", id)
	log.Error("failed to schedule summarization", "reason", reason)

	err := deps.Store.UpdateSummary(context.WithoutCancel(ctx), id, store.SummaryUpdate{
		Status:    store.StatusFailed,
		LastError: &reason,
	})
	if err != nil {
		log.Error("failed to mark record failed", "err", err)
		return store.StatusProcessing
	}
	return store.StatusFailed
}

func listHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := httputil.PageParams(r, store.DefaultListLimit)
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid pagination parameters", err, 0)
			return
		}
		recs, err := deps.Store.ListRecords(r.Context(), page.Limit, page.Offset)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list records", err, http.StatusInternalServerError)
			return
		}
		items := make([]listItem, 0, len(recs))
		for _, rec := range recs {
			items = append(items, listItem{ID: rec.ID, Status: rec.Status, Metadata: rec.Metadata, AISummary: rec.Summary})
		}
		httputil.Respond(w, r, http.StatusOK, items)
	}
}

func detailHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httputil.IDParam(r)
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid record id", err, 0)
			return
		}
		rec, err := deps.Store.GetRecord(r.Context(), id)
		if err != nil {
			httputil.Fail(deps.Log.With("record_id", id), w, "record not found", err, 0)
			return
		}
		httputil.Respond(w, r, http.StatusOK, newDetail(rec))
	}
}

// summarizeHandler re-runs summarization synchronously and returns the updated record.
func summarizeHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httputil.IDParam(r)
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid record id", err, 0)
			return
		}
		log := deps.Log.With("record_id", id)
		rec, err := deps.Orchestrator.Resummarize(r.Context(), id)
		if err != nil {
			httputil.Fail(log, w, "summarization could not run", err, 0)
			return
		}
		httputil.Respond(w, r, http.StatusOK, newDetail(rec))
	}
}

func deleteHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httputil.IDParam(r)
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid record id", err, 0)
			return
		}
		deleted, err := deps.Store.DeleteRecord(r.Context(), id)
		if err != nil {
			httputil.Fail(deps.Log.With("record_id", id), w, "failed to delete record", err, http.StatusInternalServerError)
			return
		}
		if !deleted {
			httputil.Fail(deps.Log.With("record_id", id), w, "record not found", store.ErrNotFound, 0)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
