package dashboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/iedash/internal/activity"
	"github.com/kalambet/iedash/internal/events"
	"github.com/kalambet/iedash/internal/ingest"
	"github.com/kalambet/iedash/internal/storage"
)

func (s *Service) Agents() ([]storage.Agent, error) {
	return s.store.ListAgents()
}

// ToggleAgent flips an agent's enabled flag and recomputes the active agent count.
func (s *Service) ToggleAgent(id string) (storage.Agent, error) {
	updated, _, err := s.store.ToggleAgent(id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Agent{}, err
	}
	if err != nil {
		return storage.Agent{}, fmt.Errorf("toggling agent %s: %w", id, err)
	}

	verb := "Disabled"
	if updated.Enabled {
		verb = "Enabled"
	}
	s.publish(events.EventAgentUpdated, *updated)
	s.publishStats()
	s.AddActivity(verb+" "+updated.Name, activity.CategoryAgent)
	return *updated, nil
}

// ProviderView is a provider as shown to clients: the key is masked.
type ProviderView struct {
	storage.Provider
	HasKey    bool   `json:"has_key"`
	MaskedKey string `json:"masked_key,omitempty"`
}

func newProviderView(p storage.Provider) ProviderView {
	return ProviderView{Provider: p, HasKey: p.APIKey != "", MaskedKey: MaskKey(p.APIKey)}
}

// MaskKey hides all but the last four characters of key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func (s *Service) Providers() ([]ProviderView, error) {
	providers, err := s.store.ListProviders()
	if err != nil {
		return nil, err
	}
	views := make([]ProviderView, len(providers))
	for i, p := range providers {
		views[i] = newProviderView(p)
	}
	return views, nil
}

// UpdateAPIKey stores key for the named provider. An empty key disconnects it.
func (s *Service) UpdateAPIKey(name, key string) (ProviderView, error) {
	if err := s.store.SetProviderKey(name, key); err != nil {
		return ProviderView{}, err
	}
	p, err := s.store.GetProvider(name)
	if err != nil {
		return ProviderView{}, err
	}

	view := newProviderView(*p)
	s.publish(events.EventProviderUpdated, view)
	s.AddActivity("Updated "+name+" API key", activity.CategoryAPI)
	return view, nil
}

// TestConnection schedules a simulated connection test. It reports false
// when the provider has no key, in which case nothing is scheduled.
func (s *Service) TestConnection(name string) (bool, error) {
	p, err := s.store.GetProvider(name)
	if err != nil {
		return false, err
	}
	if p.APIKey == "" {
		s.AddActivity(name+" API key required for connection test", activity.CategoryAPI)
		return false, nil
	}

	s.AddActivity("Testing "+name+" connection...", activity.CategoryAPI)
	if err := ingest.EnqueueProviderTest(s.store, name, s.cfg.ConnectionTestDelay); err != nil {
		return false, err
	}
	return true, nil
}

// ProviderConnected implements ingest.Notifier.
func (s *Service) ProviderConnected(p storage.Provider) {
	s.publish(events.EventProviderUpdated, newProviderView(p))
	s.AddActivity(p.Name+" connection successful", activity.CategoryAPI)
}
