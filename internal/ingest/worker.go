package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/iedash/internal/storage"
)

// JobStore abstracts the job queue and the records jobs update.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (*storage.Document, error)
	MarkDocumentProcessed(id, content string) error
	IncrementStat(key string, delta int) (int, error)
	GetProvider(name string) (*storage.Provider, error)
	SetProviderStatus(name, status string) error
}

// Notifier is told about finished jobs so it can update activity and
// connected clients.
type Notifier interface {
	DocumentProcessed(doc storage.Document, processedTotal int)
	ProviderConnected(p storage.Provider)
}

// Worker processes simulated background jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	notifier Notifier
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms. notifier may be nil.
func NewWorker(store JobStore, notifier Notifier, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		notifier: notifier,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single due job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobDocumentProcess, JobProviderTest})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(_ context.Context, job *storage.Job) error {
	switch job.Type {
	case JobDocumentProcess:
		return w.processDocument(job)
	case JobProviderTest:
		return w.testProvider(job)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) processDocument(job *storage.Job) error {
	var payload documentPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	if err := w.store.MarkDocumentProcessed(payload.DocumentID, ProcessedContent); err != nil {
		return fmt.Errorf("marking document %s processed: %w", payload.DocumentID, err)
	}
	total, err := w.store.IncrementStat(storage.StatDocumentsProcessed, 1)
	if err != nil {
		return fmt.Errorf("incrementing processed count: %w", err)
	}
	doc, err := w.store.GetDocument(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	w.logger.Debug("document processed", "document_id", doc.ID, "name", doc.Name)
	if w.notifier != nil {
		w.notifier.DocumentProcessed(*doc, total)
	}
	return nil
}

func (w *Worker) testProvider(job *storage.Job) error {
	var payload providerPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	if err := w.store.SetProviderStatus(payload.Provider, storage.ProviderConnected); err != nil {
		return fmt.Errorf("updating provider %s: %w", payload.Provider, err)
	}
	p, err := w.store.GetProvider(payload.Provider)
	if err != nil {
		return fmt.Errorf("loading provider %s: %w", payload.Provider, err)
	}

	w.logger.Debug("provider connection test passed", "provider", p.Name)
	if w.notifier != nil {
		w.notifier.ProviderConnected(*p)
	}
	return nil
}
