package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/iedash/internal/activity"
)

// Author identifies who wrote a chat entry.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// Message is a chat entry handed to the ChatSink.
type Message struct {
	Author Author
	Text   string
	Stage  string // empty for user entries
	Agent  string // empty for user entries
	RunID  string
}

// ChatSink receives chat entries in emission order.
type ChatSink interface {
	AddMessage(m Message)
}

// MonitorSink receives phase and overall status updates.
type MonitorSink interface {
	UpdatePhase(id PhaseID, st PhaseState)
	UpdateStatus(status Status)
}

// ActivitySink receives activity-log entries.
type ActivitySink interface {
	AddActivity(message string, category activity.Category)
}

// Sinks bundles the collaborators a Session reports to.
type Sinks struct {
	Chat     ChatSink
	Monitor  MonitorSink
	Activity ActivitySink
}

// Timings holds the scheduler delays for each Wait kind.
type Timings struct {
	PlanningTick  time.Duration
	ExecutionTick time.Duration
	Handoff       time.Duration
	Response      time.Duration
}

// DefaultTimings matches the cadence of the original dashboard.
func DefaultTimings() Timings {
	return Timings{
		PlanningTick:  300 * time.Millisecond,
		ExecutionTick: 400 * time.Millisecond,
		Handoff:       500 * time.Millisecond,
		Response:      time.Second,
	}
}

func (t Timings) delay(w Wait) time.Duration {
	switch w {
	case WaitPlanningTick:
		return t.PlanningTick
	case WaitExecutionTick:
		return t.ExecutionTick
	case WaitHandoff:
		return t.Handoff
	case WaitResponse:
		return t.Response
	default:
		return 0
	}
}

// Run is one accepted query.
type Run struct {
	ID    string
	Query string

	done   chan struct{}
	answer string
}

// Done is closed when the run has emitted its answer and the session
// accepts queries again.
func (r *Run) Done() <-chan struct{} { return r.done }

// Answer returns the final response text. It is empty until Done is closed.
func (r *Run) Answer() string {
	select {
	case <-r.done:
		return r.answer
	default:
		return ""
	}
}

// DefaultAgentName labels agent chat entries when none is configured.
const DefaultAgentName = "Strategy Analyst"

// Session runs at most one query at a time through the pipeline.
type Session struct {
	sinks     Sinks
	timings   Timings
	agentName string
	logger    *slog.Logger

	mu         sync.Mutex
	processing bool
	state      State

	// emitMu keeps the effects of consecutive runs from interleaving.
	emitMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithTimings overrides the scheduler delays.
func WithTimings(t Timings) Option {
	return func(s *Session) { s.timings = t }
}

// WithAgentName sets the agent name shown on agent chat entries.
func WithAgentName(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.agentName = name
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an idle session. Close must be called to stop a run
// that is still in flight at shutdown.
func NewSession(sinks Sinks, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		sinks:     sinks,
		timings:   DefaultTimings(),
		agentName: DefaultAgentName,
		logger:    slog.Default(),
		state:     IdleState(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit accepts query into the pipeline unless a query is already in
// flight, in which case it does nothing and returns false.
func (s *Session) Submit(query string) (*Run, bool) {
	s.mu.Lock()
	if s.processing || s.ctx.Err() != nil {
		s.mu.Unlock()
		s.logger.Debug("query dropped, pipeline busy")
		return nil, false
	}
	s.processing = true
	next, effects, wait := Start(query)
	s.state = next
	s.mu.Unlock()

	r := &Run{ID: uuid.NewString(), Query: query, done: make(chan struct{})}

	s.emitMu.Lock()
	s.sinks.Chat.AddMessage(Message{Author: AuthorUser, Text: query, RunID: r.ID})
	s.apply(r, effects)
	s.emitMu.Unlock()

	s.wg.Add(1)
	go s.run(r, wait)
	return r, true
}

// Processing reports whether a query is in flight.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Snapshot returns a copy of the current pipeline state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops the scheduler and waits for it to exit.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Session) run(r *Run, wait Wait) {
	defer s.wg.Done()

	for wait != WaitNone {
		timer := time.NewTimer(s.timings.delay(wait))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		next, effects, w := Step(s.state)
		s.state = next
		s.mu.Unlock()

		s.emitMu.Lock()
		s.apply(r, effects)
		s.emitMu.Unlock()
		wait = w
	}
}

func (s *Session) apply(r *Run, effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectPhase:
			s.sinks.Monitor.UpdatePhase(e.Phase, e.PhaseState)
		case EffectStatus:
			s.sinks.Monitor.UpdateStatus(e.Status)
		case EffectChat:
			if e.Stage == ResponseLabel {
				r.answer = e.Text
			}
			s.sinks.Chat.AddMessage(Message{
				Author: AuthorAgent,
				Text:   e.Text,
				Stage:  e.Stage,
				Agent:  s.agentName,
				RunID:  r.ID,
			})
		case EffectActivity:
			s.sinks.Activity.AddActivity(e.Message, e.Category)
		case EffectDone:
			s.mu.Lock()
			s.processing = false
			s.mu.Unlock()
			close(r.done)
		}
	}
}
