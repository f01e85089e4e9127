package pipeline

import "github.com/kalambet/iedash/internal/activity"

// Wait tells the scheduler how long to sleep before the next Step.
type Wait int

const (
	// WaitNone means the run is finished.
	WaitNone Wait = iota
	WaitPlanningTick
	WaitExecutionTick
	WaitHandoff
	WaitResponse
)

// EffectKind selects which sink an Effect is delivered to.
type EffectKind int

const (
	EffectPhase EffectKind = iota
	EffectStatus
	EffectChat
	EffectActivity
	// EffectDone ends the run: the session stops being busy here.
	EffectDone
)

// Effect is one observable output of a transition.
type Effect struct {
	Kind EffectKind

	// EffectPhase
	Phase      PhaseID
	PhaseState PhaseState

	// EffectStatus
	Status Status

	// EffectChat: an agent-authored entry.
	Stage string
	Text  string

	// EffectActivity
	Message  string
	Category activity.Category
}

func phaseEffect(id PhaseID, st PhaseState) Effect {
	return Effect{Kind: EffectPhase, Phase: id, PhaseState: st}
}

func chatEffect(stage, text string) Effect {
	return Effect{Kind: EffectChat, Stage: stage, Text: text}
}

// Start moves an idle session into planning for query.
// The user chat entry is emitted by the session, not here.
func Start(query string) (State, []Effect, Wait) {
	s := IdleState()
	s.Stage = StagePlanning
	s.Query = query
	s.Planning = planningPhase.start()
	return s, []Effect{
		{Kind: EffectStatus, Status: StatusActive},
		phaseEffect(PhasePlanning, s.Planning),
		{Kind: EffectActivity, Message: "New query received", Category: activity.CategoryChat},
	}, WaitPlanningTick
}

// Step performs the transition that follows the wait returned by the
// previous Start or Step. Step on an idle state is a no-op.
func Step(s State) (State, []Effect, Wait) {
	switch s.Stage {
	case StagePlanning:
		if s.Planning.Progress >= 100 {
			s.Stage = StageExecution
			s.Execution = executionPhase.start()
			return s, []Effect{phaseEffect(PhaseExecution, s.Execution)}, WaitExecutionTick
		}
		s.Planning = planningPhase.advance(s.Planning)
		effects := []Effect{phaseEffect(PhasePlanning, s.Planning)}
		if s.Planning.Progress < 100 {
			return s, effects, WaitPlanningTick
		}
		effects = append(effects, chatEffect(planningPhase.Label, s.Planning.Content))
		return s, effects, WaitHandoff

	case StageExecution:
		s.Execution = executionPhase.advance(s.Execution)
		effects := []Effect{phaseEffect(PhaseExecution, s.Execution)}
		if s.Execution.Progress < 100 {
			return s, effects, WaitExecutionTick
		}
		s.Stage = StageResponding
		effects = append(effects, chatEffect(executionPhase.Label, s.Execution.Content))
		return s, effects, WaitResponse

	case StageResponding:
		response := GenerateResponse(s.Query)
		next := IdleState()
		return next, []Effect{
			chatEffect(ResponseLabel, response),
			{Kind: EffectStatus, Status: StatusIdle},
			phaseEffect(PhasePlanning, next.Planning),
			phaseEffect(PhaseExecution, next.Execution),
			{Kind: EffectDone},
			{Kind: EffectActivity, Message: "Query processed successfully", Category: activity.CategoryAgent},
		}, WaitNone

	default:
		return s, nil, WaitNone
	}
}
