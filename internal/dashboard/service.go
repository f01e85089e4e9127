// Package dashboard implements the dashboard's operations on top of the
// store, the activity log, the event bus and the query pipeline.
package dashboard

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/iedash/internal/activity"
	"github.com/kalambet/iedash/internal/events"
	"github.com/kalambet/iedash/internal/pipeline"
	"github.com/kalambet/iedash/internal/seed"
	"github.com/kalambet/iedash/internal/storage"
)

var (
	// ErrBusy is returned by Ask when a query is already in flight.
	ErrBusy = errors.New("a query is already being processed")
	// ErrInvalidInput marks caller mistakes such as an empty name.
	ErrInvalidInput = errors.New("invalid input")
)

// Config holds the tunables of a Service. Zero Timings and AgentName fall
// back to defaults; zero delays run jobs immediately.
type Config struct {
	Timings             pipeline.Timings
	AgentName           string
	ActivityCapacity    int
	MinProcessingDelay  time.Duration
	MaxProcessingDelay  time.Duration
	ConnectionTestDelay time.Duration
}

// DefaultConfig returns the original dashboard's timings.
func DefaultConfig() Config {
	return Config{
		Timings:             pipeline.DefaultTimings(),
		AgentName:           pipeline.DefaultAgentName,
		ActivityCapacity:    activity.DefaultCapacity,
		MinProcessingDelay:  2 * time.Second,
		MaxProcessingDelay:  5 * time.Second,
		ConnectionTestDelay: 1500 * time.Millisecond,
	}
}

// Monitor is the agent monitor panel: overall status, both phases and the
// enabled agents.
type Monitor struct {
	Status     pipeline.Status     `json:"status"`
	Processing bool                `json:"processing"`
	Planning   pipeline.PhaseState `json:"planning"`
	Execution  pipeline.PhaseState `json:"execution"`
	Agents     []storage.Agent     `json:"agents"`
}

// PhaseUpdate is the payload of an EventMonitorPhase event.
type PhaseUpdate struct {
	Phase pipeline.PhaseID    `json:"phase"`
	State pipeline.PhaseState `json:"state"`
}

// Service owns all dashboard state.
type Service struct {
	store     *storage.Store
	bus       *events.Bus
	activity  *activity.Log
	session   *pipeline.Session
	analytics seed.Analytics
	cfg       Config
	logger    *slog.Logger

	monMu     sync.RWMutex
	status    pipeline.Status
	planning  pipeline.PhaseState
	execution pipeline.PhaseState
}

// New builds a Service over an already seeded store and logs the startup
// activity entries.
func New(store *storage.Store, bus *events.Bus, analytics seed.Analytics, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.Timings == (pipeline.Timings{}) {
		cfg.Timings = def.Timings
	}
	if cfg.AgentName == "" {
		cfg.AgentName = def.AgentName
	}
	if cfg.MaxProcessingDelay < cfg.MinProcessingDelay {
		cfg.MaxProcessingDelay = cfg.MinProcessingDelay
	}

	idle := pipeline.IdleState()
	s := &Service{
		store:     store,
		bus:       bus,
		activity:  activity.NewLog(cfg.ActivityCapacity),
		analytics: analytics,
		cfg:       cfg,
		logger:    slog.Default().With("component", "dashboard"),
		status:    pipeline.StatusIdle,
		planning:  idle.Planning,
		execution: idle.Execution,
	}
	s.session = pipeline.NewSession(
		pipeline.Sinks{Chat: s, Monitor: s, Activity: s},
		pipeline.WithTimings(cfg.Timings),
		pipeline.WithAgentName(cfg.AgentName),
		pipeline.WithLogger(s.logger),
	)

	s.AddActivity("System started successfully", activity.CategorySystem)
	s.AddActivity("Knowledge base loaded", activity.CategoryDatabase)
	return s
}

// Close stops an in-flight pipeline run.
func (s *Service) Close() {
	s.session.Close()
}

func (s *Service) publish(t events.EventType, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(events.NewEvent(t, payload)); err != nil {
		s.logger.Debug("event dropped", "type", t, "error", err)
	}
}

// AddMessage persists a chat entry and broadcasts it. It implements
// pipeline.ChatSink.
func (s *Service) AddMessage(m pipeline.Message) {
	msg, err := s.store.SaveChatMessage(storage.ChatMessage{
		Author: string(m.Author),
		Text:   m.Text,
		Stage:  m.Stage,
		Agent:  m.Agent,
		RunID:  m.RunID,
	})
	if err != nil {
		s.logger.Error("saving chat message", "error", err)
		return
	}
	s.publish(events.EventChatMessage, msg)
}

// UpdatePhase implements pipeline.MonitorSink.
func (s *Service) UpdatePhase(id pipeline.PhaseID, st pipeline.PhaseState) {
	s.monMu.Lock()
	switch id {
	case pipeline.PhasePlanning:
		s.planning = st
	case pipeline.PhaseExecution:
		s.execution = st
	}
	s.monMu.Unlock()
	s.publish(events.EventMonitorPhase, PhaseUpdate{Phase: id, State: st})
}

// UpdateStatus implements pipeline.MonitorSink.
func (s *Service) UpdateStatus(status pipeline.Status) {
	s.monMu.Lock()
	s.status = status
	s.monMu.Unlock()
	s.publish(events.EventMonitorStatus, status)
}

// AddActivity records an activity entry and broadcasts it. It implements
// pipeline.ActivitySink.
func (s *Service) AddActivity(message string, category activity.Category) {
	item := s.activity.Add(message, category)
	s.publish(events.EventActivityAdded, item)
}

// Activity returns the recent activity, newest first.
func (s *Service) Activity() []activity.Item {
	return s.activity.Items()
}

// Monitor returns the agent monitor panel.
func (s *Service) Monitor() (Monitor, error) {
	agents, err := s.store.ListAgents()
	if err != nil {
		return Monitor{}, err
	}
	enabled := make([]storage.Agent, 0, len(agents))
	for _, a := range agents {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}

	s.monMu.RLock()
	defer s.monMu.RUnlock()
	return Monitor{
		Status:     s.status,
		Processing: s.session.Processing(),
		Planning:   s.planning,
		Execution:  s.execution,
		Agents:     enabled,
	}, nil
}

func (s *Service) Stats() (storage.SystemStats, error) {
	return s.store.GetStats()
}

func (s *Service) Analytics() seed.Analytics {
	return s.analytics
}

func (s *Service) Messages() ([]storage.ChatMessage, error) {
	return s.store.ListChatMessages()
}

func (s *Service) publishStats() {
	st, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("reading stats", "error", err)
		return
	}
	s.publish(events.EventStatsUpdated, st)
}
