package dashboard

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/iedash/internal/activity"
	"github.com/kalambet/iedash/internal/events"
	"github.com/kalambet/iedash/internal/ingest"
	"github.com/kalambet/iedash/internal/storage"
)

// PendingContent is a new document's content until processing finishes.
const PendingContent = "Processing document content..."

// Documents lists documents matching the exact category and status given.
// Empty values match everything.
func (s *Service) Documents(category, status string) ([]storage.Document, error) {
	return s.store.ListDocuments(storage.DocumentFilter{Category: category, Status: status})
}

// UploadDocument registers an uploaded file and schedules its simulated
// processing.
func (s *Service) UploadDocument(name string, data []byte) (storage.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Document{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}

	now := time.Now()
	doc := storage.Document{
		ID:         "doc-" + uuid.New().String(),
		Name:       name,
		Type:       ingest.FileType(name),
		Category:   "General",
		Size:       ingest.FormatSize(int64(len(data))),
		UploadDate: now.UTC().Format("2006-01-02"),
		Status:     storage.DocumentProcessing,
		Content:    PendingContent,
		Tags:       []string{"uploaded", "new"},
		CreatedAt:  now,
	}

	md, err := ingest.Inspect(doc.Type, data)
	if err != nil {
		s.logger.Warn("reading upload metadata", "name", name, "error", err)
	}
	doc.Pages = md.Pages
	if md.Title != "" {
		doc.Content = md.Title
	}

	if err := s.store.SaveDocument(doc); err != nil {
		return storage.Document{}, fmt.Errorf("saving document: %w", err)
	}
	s.publish(events.EventDocumentUpdated, doc)
	s.AddActivity("Uploaded "+name, activity.CategoryUpload)

	if err := ingest.EnqueueDocumentProcess(s.store, doc.ID, s.processingDelay()); err != nil {
		return doc, err
	}
	return doc, nil
}

func (s *Service) processingDelay() time.Duration {
	spread := s.cfg.MaxProcessingDelay - s.cfg.MinProcessingDelay
	if spread <= 0 {
		return s.cfg.MinProcessingDelay
	}
	return s.cfg.MinProcessingDelay + rand.N(spread)
}

// DocumentProcessed implements ingest.Notifier.
func (s *Service) DocumentProcessed(doc storage.Document, _ int) {
	s.publish(events.EventDocumentUpdated, doc)
	s.AddActivity("Processed "+doc.Name, activity.CategoryDatabase)
	s.publishStats()
}
