package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kalambet/iedash/internal/activity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type phaseUpdate struct {
	id PhaseID
	st PhaseState
}

type recordingSinks struct {
	mu       sync.Mutex
	messages []Message
	phases   []phaseUpdate
	statuses []Status
	activity *activity.Log
}

func newRecordingSinks() *recordingSinks {
	return &recordingSinks{activity: activity.NewLog(activity.DefaultCapacity)}
}

func (r *recordingSinks) sinks() Sinks {
	return Sinks{Chat: r, Monitor: r, Activity: r}
}

func (r *recordingSinks) AddMessage(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *recordingSinks) UpdatePhase(id PhaseID, st PhaseState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phaseUpdate{id, st})
}

func (r *recordingSinks) UpdateStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recordingSinks) AddActivity(message string, category activity.Category) {
	r.activity.Add(message, category)
}

func (r *recordingSinks) snapshotMessages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

type activityFunc func(message string, category activity.Category)

func (f activityFunc) AddActivity(message string, category activity.Category) {
	f(message, category)
}

func instant() Timings { return Timings{} }

func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.Processing() }, 2*time.Second, time.Millisecond)
}

func waitRun(t *testing.T, r *Run) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run %s did not finish", r.ID)
	}
}

func TestSession_FullRun(t *testing.T) {
	rec := newRecordingSinks()
	s := NewSession(rec.sinks(), WithTimings(instant()))
	defer s.Close()

	r, ok := s.Submit("Tell me about onboarding")
	require.True(t, ok)
	require.NotEmpty(t, r.ID)
	waitRun(t, r)

	msgs := rec.snapshotMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, Message{Author: AuthorUser, Text: "Tell me about onboarding", RunID: r.ID}, msgs[0])

	var stages []string
	for _, m := range msgs[1:] {
		assert.Equal(t, AuthorAgent, m.Author)
		assert.Equal(t, DefaultAgentName, m.Agent)
		assert.Equal(t, r.ID, m.RunID)
		stages = append(stages, m.Stage)
	}
	assert.Equal(t, []string{"Planning", "Execution", "Response"}, stages)
	assert.Equal(t, Rules[1].Response, msgs[3].Text)
	assert.Equal(t, Rules[1].Response, r.Answer())

	assert.Equal(t, IdleState(), s.Snapshot())
	assert.Equal(t, []Status{StatusActive, StatusIdle}, rec.statuses)

	require.Eventually(t, func() bool { return rec.activity.Len() == 2 }, 2*time.Second, time.Millisecond)
	items := rec.activity.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "Query processed successfully", items[0].Message)
	assert.Equal(t, "New query received", items[1].Message)
}

func TestSession_DropsWhileBusy(t *testing.T) {
	rec := newRecordingSinks()
	slow := Timings{PlanningTick: time.Hour, ExecutionTick: time.Hour, Handoff: time.Hour, Response: time.Hour}
	s := NewSession(rec.sinks(), WithTimings(slow))
	defer s.Close()

	first, ok := s.Submit("first")
	require.True(t, ok)
	before := s.Snapshot()

	r, ok := s.Submit("second")
	assert.False(t, ok)
	assert.Nil(t, r)
	assert.Empty(t, first.Answer())
	assert.True(t, s.Processing())
	assert.Equal(t, before, s.Snapshot())

	msgs := rec.snapshotMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Text)
}

func TestSession_AcceptsAfterCompletion(t *testing.T) {
	rec := newRecordingSinks()
	s := NewSession(rec.sinks(), WithTimings(instant()))
	defer s.Close()

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		r, ok := s.Submit(fmt.Sprintf("query %d", i))
		require.True(t, ok)
		waitRun(t, r)
		ids[r.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Len(t, rec.snapshotMessages(), 12)
}

func TestSession_FreeBeforeSuccessActivity(t *testing.T) {
	rec := newRecordingSinks()
	var s *Session
	var busyAtSuccess []bool
	sinks := rec.sinks()
	sinks.Activity = activityFunc(func(message string, category activity.Category) {
		if message == "Query processed successfully" {
			busyAtSuccess = append(busyAtSuccess, s.Processing())
		}
		rec.AddActivity(message, category)
	})
	s = NewSession(sinks, WithTimings(instant()))
	defer s.Close()

	r, ok := s.Submit("q")
	require.True(t, ok)
	waitRun(t, r)
	require.Eventually(t, func() bool { return rec.activity.Len() == 2 }, 2*time.Second, time.Millisecond)

	assert.Equal(t, []bool{false}, busyAtSuccess)
}

func TestSession_AcceptsAsSoonAsRunIsDone(t *testing.T) {
	rec := newRecordingSinks()
	s := NewSession(rec.sinks(), WithTimings(instant()))
	defer s.Close()

	first, ok := s.Submit("what is our vision")
	require.True(t, ok)
	waitRun(t, first)

	second, ok := s.Submit("tell me about onboarding")
	require.True(t, ok)
	waitRun(t, second)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, Rules[0].Response, first.Answer())
	assert.Equal(t, Rules[1].Response, second.Answer())

	// Every entry is tagged with the run that produced it.
	for _, m := range rec.snapshotMessages() {
		switch m.RunID {
		case first.ID, second.ID:
		default:
			t.Errorf("message %q has run id %q", m.Text, m.RunID)
		}
	}
}

func TestSession_ConcurrentSubmitsAdmitOne(t *testing.T) {
	rec := newRecordingSinks()
	slow := Timings{PlanningTick: time.Hour}
	s := NewSession(rec.sinks(), WithTimings(slow))
	defer s.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Submit("race"); ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Len(t, rec.snapshotMessages(), 1)
}

func TestSession_IndependentInstances(t *testing.T) {
	recA, recB := newRecordingSinks(), newRecordingSinks()
	a := NewSession(recA.sinks(), WithTimings(instant()), WithAgentName("HR Operations Specialist"))
	b := NewSession(recB.sinks(), WithTimings(Timings{PlanningTick: time.Hour}))
	defer a.Close()
	defer b.Close()

	_, ok := b.Submit("blocked")
	require.True(t, ok)
	r, ok := a.Submit("vision")
	require.True(t, ok)
	waitRun(t, r)

	assert.True(t, b.Processing())
	msgs := recA.snapshotMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "HR Operations Specialist", msgs[3].Agent)
}

func TestSession_CloseStopsInFlightRun(t *testing.T) {
	rec := newRecordingSinks()
	s := NewSession(rec.sinks(), WithTimings(Timings{PlanningTick: time.Hour}))
	_, ok := s.Submit("q")
	require.True(t, ok)
	s.Close()

	_, ok = s.Submit("after close")
	assert.False(t, ok)
}

func TestSession_PhaseUpdatesReachMonitor(t *testing.T) {
	rec := newRecordingSinks()
	s := NewSession(rec.sinks(), WithTimings(instant()))
	defer s.Close()

	_, ok := s.Submit("q")
	require.True(t, ok)
	waitIdle(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := rec.phases[len(rec.phases)-2:]
	assert.Equal(t, phaseUpdate{PhasePlanning, PhaseState{Content: "Waiting for query..."}}, last[0])
	assert.Equal(t, phaseUpdate{PhaseExecution, PhaseState{Content: "Waiting for execution..."}}, last[1])
}
