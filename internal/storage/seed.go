package storage

import (
	"fmt"
	"strconv"

	"github.com/kalambet/iedash/internal/seed"
)

// Seed loads the mock data set into the store. It is meant for a fresh
// store; rows with existing ids are overwritten.
func (s *Store) Seed(d seed.Data) error {
	for _, doc := range d.Documents {
		if err := s.SaveDocument(Document{
			ID:         doc.ID,
			Name:       doc.Name,
			Type:       doc.Type,
			Category:   doc.Category,
			Size:       doc.Size,
			UploadDate: doc.UploadDate,
			Status:     doc.Status,
			Content:    doc.Content,
			Tags:       doc.Tags,
		}); err != nil {
			return fmt.Errorf("seeding document %s: %w", doc.ID, err)
		}
	}

	for _, a := range d.Agents {
		if err := s.SaveAgent(Agent{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Enabled:     a.Enabled,
			Specialties: a.Specialties,
			Tools:       a.Tools,
			Status:      a.Status,
		}); err != nil {
			return fmt.Errorf("seeding agent %s: %w", a.ID, err)
		}
	}

	for _, p := range d.Providers {
		if err := s.SaveProvider(Provider{
			Name:   p.Name,
			Models: p.Models,
			Status: p.Status,
		}); err != nil {
			return fmt.Errorf("seeding provider %s: %w", p.Name, err)
		}
	}

	stats := map[string]string{
		StatDocumentsProcessed:  strconv.Itoa(d.Stats.DocumentsProcessed),
		StatTotalQueries:        strconv.Itoa(d.Stats.TotalQueries),
		StatActiveAgents:        strconv.Itoa(d.Stats.ActiveAgents),
		StatSuccessRate:         strconv.FormatFloat(d.Stats.SuccessRate, 'f', -1, 64),
		StatAverageResponseTime: d.Stats.AverageResponseTime,
		StatKnowledgeBaseSizeMB: strconv.Itoa(d.Stats.KnowledgeBaseSizeMB),
	}
	for k, v := range stats {
		if err := s.SetStat(k, v); err != nil {
			return fmt.Errorf("seeding stat %s: %w", k, err)
		}
	}
	return nil
}
