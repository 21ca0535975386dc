// Package orchestrator drives a record from processing to a summarized terminal state.
//
// The fallback ladder for one invocation is:
//
//	no model configured        -> stub summary, completed
//	model call fails           -> heuristic summary, completed
//	model returns a JSON object -> model summary, completed
//	model returns non-JSON text -> text summary, completed
//	nothing usable             -> failed with last_error
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"insight-agents/internal/document"
	"insight-agents/internal/extract"
	"insight-agents/internal/heuristic"
	"insight-agents/internal/llm"
	"insight-agents/internal/lock"
	"insight-agents/internal/prompt"
	"insight-agents/internal/queue"
	"insight-agents/internal/store"
	"insight-agents/internal/summary"
)

// ErrInFlight is returned when another summarization of the same record holds the lock.
var ErrInFlight = errors.New("summarization already in flight for this record")

var errEmptySummary = errors.New("model returned JSON without summary fields")

// TerminalError is recorded as last_error when no tier produced a summary.
type TerminalError struct {
	Stage string
	Err   error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("summarization failed at %s: %v", e.Stage, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Tier names the rung of the fallback ladder that produced an outcome.
type Tier string

const (
	TierStub      Tier = "stub"
	TierModel     Tier = "model"
	TierText      Tier = "text"
	TierHeuristic Tier = "heuristic"
	TierFailed    Tier = "failed"
)

// Outcome is the result of one pass down the ladder.
type Outcome struct {
	Status  store.Status
	Tier    Tier
	Summary *summary.Result
	// Cause is the model error absorbed by the heuristic tier.
	Cause error
	// Err is set when Status is failed.
	Err error
}

const (
	defaultModelTimeout = 30 * time.Second
	persistTimeout      = 10 * time.Second
)

// Options tune an Orchestrator. Zero values select defaults.
type Options struct {
	Prompt       *prompt.Builder
	ModelTimeout time.Duration
	// LockTTL bounds how long a crashed worker can block a record.
	LockTTL time.Duration
}

type Orchestrator struct {
	log       *slog.Logger
	store     store.Store
	locker    lock.Locker
	model     llm.Client
	prompts   *prompt.Builder
	heuristic func(document.Metadata, document.Data) summary.Result
	timeout   time.Duration
	lockTTL   time.Duration
}

// New builds an orchestrator. A nil model selects the offline stub tier.
func New(log *slog.Logger, st store.Store, locker lock.Locker, model llm.Client, opts Options) *Orchestrator {
	if opts.Prompt == nil {
		opts.Prompt = prompt.NewBuilder()
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = defaultModelTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.ModelTimeout + time.Minute
	}
	return &Orchestrator{
		log:       log,
		store:     st,
		locker:    locker,
		model:     model,
		prompts:   opts.Prompt,
		heuristic: heuristic.Summarize,
		timeout:   opts.ModelTimeout,
		lockTTL:   opts.LockTTL,
	}
}

// ModelConfigured reports whether a model backend is available.
func (o *Orchestrator) ModelConfigured() bool { return o.model != nil }

// Summarize runs the fallback ladder without touching the store.
func (o *Orchestrator) Summarize(ctx context.Context, meta document.Metadata, data document.Data) Outcome {
	if o.model == nil {
		s := summary.Stub(meta)
		return Outcome{Status: store.StatusCompleted, Tier: TierStub, Summary: &s}
	}

	p, err := o.prompts.Build(meta, data)
	if err != nil {
		return o.fallback(meta, data, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	out, err := o.model.Generate(callCtx, p)
	cancel()
	if err != nil {
		return o.fallback(meta, data, err)
	}

	text := extract.Candidate(out.Text, out.InlineData)
	obj, xerr := extract.Object(text)
	if xerr == nil {
		if s := summary.FromJSON(obj); !s.IsEmpty() {
			return Outcome{Status: store.StatusCompleted, Tier: TierModel, Summary: &s}
		}
		xerr = errEmptySummary
	}
	// Only prose is wrapped; JSON that carried nothing usable is a failure.
	if errors.Is(xerr, extract.ErrNoJSON) && !extract.IsJSON(text) {
		s := summary.WrapText(strings.TrimSpace(text), meta)
		return Outcome{Status: store.StatusCompleted, Tier: TierText, Summary: &s}
	}
	return Outcome{
		Status: store.StatusFailed,
		Tier:   TierFailed,
		Err:    &TerminalError{Stage: "extract", Err: xerr},
	}
}

// fallback produces the heuristic tier. A panic inside it becomes a terminal failure.
func (o *Orchestrator) fallback(meta document.Metadata, data document.Data, cause error) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Status: store.StatusFailed,
				Tier:   TierFailed,
				Cause:  cause,
				Err:    &TerminalError{Stage: "heuristic", Err: fmt.Errorf("panic: %v", r)},
			}
		}
	}()
	s := o.heuristic(meta, data)
	if s.IsEmpty() {
		return Outcome{
			Status: store.StatusFailed,
			Tier:   TierFailed,
			Cause:  cause,
			Err:    &TerminalError{Stage: "heuristic", Err: errors.New("empty heuristic summary")},
		}
	}
	return Outcome{Status: store.StatusCompleted, Tier: TierHeuristic, Summary: &s, Cause: cause}
}

// Resummarize synchronously re-drives a record through the ladder and returns the updated record.
// It fails with ErrInFlight while another summarization of the same record runs.
func (o *Orchestrator) Resummarize(ctx context.Context, id uuid.UUID) (store.Record, error) {
	release, err := o.acquire(ctx, id)
	if err != nil {
		return store.Record{}, err
	}
	defer release()

	rec, err := o.store.GetRecord(ctx, id)
	if err != nil {
		return store.Record{}, err
	}
	if _, err := o.run(ctx, rec); err != nil {
		return store.Record{}, err
	}
	return o.store.GetRecord(ctx, id)
}

// HandleTask is the queue handler for summarize tasks. Tasks for records that are gone, locked
// by another invocation, or no longer processing are skipped.
func (o *Orchestrator) HandleTask(ctx context.Context, task queue.Task) error {
	payload, err := queue.DecodeSummarize(task)
	if err != nil {
		return queue.Permanent(err)
	}
	log := o.log.With("record_id", payload.RecordID, "task_id", task.ID)

	release, err := o.acquire(ctx, payload.RecordID)
	if errors.Is(err, ErrInFlight) {
		log.Info("summarization already in flight, skipping task")
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	rec, err := o.store.GetRecord(ctx, payload.RecordID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("record deleted before summarization, skipping task")
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		log.Info("record already summarized, skipping task", "status", rec.Status)
		return nil
	}
	_, err = o.run(ctx, rec)
	return err
}

// run marks rec processing, summarizes it and persists the terminal state.
func (o *Orchestrator) run(ctx context.Context, rec store.Record) (Outcome, error) {
	log := o.log.With("record_id", rec.ID)

	err := o.store.UpdateSummary(ctx, rec.ID, store.SummaryUpdate{Status: store.StatusProcessing})
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	out := o.Summarize(ctx, rec.Metadata, rec.RawData)

	upd := store.SummaryUpdate{Status: out.Status, Summary: out.Summary}
	if out.Err != nil {
		msg := out.Err.Error()
		upd.LastError = &msg
	}

	// The terminal write must land even if the caller went away mid-call.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err = o.store.UpdateSummary(persistCtx, rec.ID, upd)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("record deleted during summarization, dropping result", "tier", out.Tier)
		return out, nil
	}
	if err != nil {
		persistErr := fmt.Errorf("persist summary: %w", err)
		o.markFailed(persistCtx, rec.ID, persistErr)
		return out, persistErr
	}

	attrs := []any{"tier", out.Tier, "status", out.Status, "duration_ms", time.Since(start).Milliseconds()}
	switch {
	case out.Err != nil:
		log.Error("summarization failed", append(attrs, "err", out.Err)...)
	case out.Cause != nil:
		msg := "model call failed, used heuristic summary"
		if llm.IsUnavailable(out.Cause) {
			msg = "model unavailable, used heuristic summary"
		}
		log.Warn(msg, append(attrs, "cause", out.Cause)...)
	default:
		log.Info("summarization completed", attrs...)
	}
	return out, nil
}

// markFailed is a best-effort write that keeps a record from staying in processing after its
// terminal update could not be stored.
func (o *Orchestrator) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	err := o.store.UpdateSummary(ctx, id, store.SummaryUpdate{Status: store.StatusFailed, LastError: &msg})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		o.log.Error("failed to mark record failed", "record_id", id, "err", err, "cause", cause)
	}
}

func (o *Orchestrator) acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	key := "summarize:" + id.String()
	token, ok, err := o.locker.TryAcquire(ctx, key, o.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire record lock: %w", err)
	}
	if !ok {
		return nil, ErrInFlight
	}
	return func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := o.locker.Release(relCtx, key, token); err != nil {
			o.log.Warn("failed to release record lock", "record_id", id, "err", err)
		}
	}, nil
}
