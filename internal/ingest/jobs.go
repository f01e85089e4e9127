package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/iedash/internal/storage"
)

// Job types handled by the Worker.
const (
	JobDocumentProcess = "document_process"
	JobProviderTest    = "provider_test"
)

// ProcessedContent replaces a document's content once processing finishes.
const ProcessedContent = "Document content processed and indexed."

// Enqueuer is the write side of the job queue.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

type documentPayload struct {
	DocumentID string `json:"document_id"`
}

type providerPayload struct {
	Provider string `json:"provider"`
}

// EnqueueDocumentProcess schedules a document to be marked processed after delay.
func EnqueueDocumentProcess(q Enqueuer, documentID string, delay time.Duration) error {
	return enqueue(q, JobDocumentProcess, documentPayload{DocumentID: documentID}, delay)
}

// EnqueueProviderTest schedules a simulated connection test after delay.
func EnqueueProviderTest(q Enqueuer, provider string, delay time.Duration) error {
	return enqueue(q, JobProviderTest, providerPayload{Provider: provider}, delay)
}

func enqueue(q Enqueuer, jobType string, payload any, delay time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", jobType, err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: string(raw),
		RunAfter:    time.Now().Add(delay),
	}
	if err := q.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing %s job: %w", jobType, err)
	}
	return nil
}
