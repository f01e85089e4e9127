package dashboard

import (
	"context"
	"strings"

	"github.com/kalambet/iedash/internal/storage"
)

// SubmitStatus is the outcome of SubmitQuery.
type SubmitStatus string

const (
	SubmitAccepted SubmitStatus = "accepted"
	SubmitBusy     SubmitStatus = "busy"
	SubmitIgnored  SubmitStatus = "ignored"
)

// Submission reports what happened to a submitted query. RunID is set
// only when the query was accepted.
type Submission struct {
	Status SubmitStatus `json:"status"`
	RunID  string       `json:"run_id,omitempty"`
}

// SubmitQuery trims text and hands it to the pipeline. Blank text is
// ignored; text sent while a query is in flight is dropped.
func (s *Service) SubmitQuery(text string) Submission {
	text = strings.TrimSpace(text)
	if text == "" {
		return Submission{Status: SubmitIgnored}
	}
	r, ok := s.session.Submit(text)
	if !ok {
		return Submission{Status: SubmitBusy}
	}
	s.countQuery()
	return Submission{Status: SubmitAccepted, RunID: r.ID}
}

// Ask submits text and blocks until the pipeline answers it or ctx ends.
func (s *Service) Ask(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrInvalidInput
	}

	r, ok := s.session.Submit(text)
	if !ok {
		return "", ErrBusy
	}
	s.countQuery()

	select {
	case <-r.Done():
		return r.Answer(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Service) countQuery() {
	if _, err := s.store.IncrementStat(storage.StatTotalQueries, 1); err != nil {
		s.logger.Error("incrementing query count", "error", err)
		return
	}
	s.publishStats()
}
