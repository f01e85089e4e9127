package pipeline

// Stage is the position of a session in the query timeline.
type Stage int

const (
	StageIdle Stage = iota
	StagePlanning
	StageExecution
	StageResponding
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StagePlanning:
		return "planning"
	case StageExecution:
		return "execution"
	case StageResponding:
		return "responding"
	default:
		return "unknown"
	}
}

// PhaseID names one of the two monitored phases.
type PhaseID string

const (
	PhasePlanning  PhaseID = "planning"
	PhaseExecution PhaseID = "execution"
)

// Status is the overall monitor status.
type Status string

const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
)

// PhaseState is what the monitor displays for one phase.
type PhaseState struct {
	Active   bool   `json:"active"`
	Progress int    `json:"progress"`
	Content  string `json:"content"`
}

// Phase describes the fixed script of a phase: its chat label, progress
// step, and the status line shown at each progress value.
type Phase struct {
	ID           PhaseID
	Label        string
	Step         int
	StartContent string
	IdleContent  string
	Lines        map[int]string
}

var planningPhase = Phase{
	ID:           PhasePlanning,
	Label:        "Planning",
	Step:         20,
	StartContent: "Analyzing query and determining approach...",
	IdleContent:  "Waiting for query...",
	Lines: map[int]string{
		20:  "Parsing query intent...",
		40:  "Searching knowledge base...",
		60:  "Selecting relevant agents...",
		80:  "Preparing execution plan...",
		100: "Planning complete. Starting execution...",
	},
}

var executionPhase = Phase{
	ID:           PhaseExecution,
	Label:        "Execution",
	Step:         25,
	StartContent: "Retrieving relevant documents...",
	IdleContent:  "Waiting for execution...",
	Lines: map[int]string{
		25:  "Found 3 relevant documents...",
		50:  "Extracting key information...",
		75:  "Analyzing content and context...",
		100: "Generating comprehensive response...",
	},
}

// Planning returns the planning phase script.
func Planning() Phase { return planningPhase }

// Execution returns the execution phase script.
func Execution() Phase { return executionPhase }

// ResponseLabel is the stage label of the final agent answer.
const ResponseLabel = "Response"

// idle returns the phase state shown when no query is in flight.
func (p Phase) idle() PhaseState {
	return PhaseState{Active: false, Progress: 0, Content: p.IdleContent}
}

func (p Phase) start() PhaseState {
	return PhaseState{Active: true, Progress: 0, Content: p.StartContent}
}

// advance applies one tick. Progress is clamped to 100.
func (p Phase) advance(st PhaseState) PhaseState {
	next := st.Progress + p.Step
	if next > 100 {
		next = 100
	}
	content := st.Content
	if line, ok := p.Lines[next]; ok {
		content = line
	}
	return PhaseState{Active: true, Progress: next, Content: content}
}

// State is the full, copyable state of one session's pipeline.
type State struct {
	Stage     Stage      `json:"-"`
	Query     string     `json:"-"`
	Planning  PhaseState `json:"planning"`
	Execution PhaseState `json:"execution"`
}

// IdleState is the state of a session with no query in flight.
func IdleState() State {
	return State{
		Stage:     StageIdle,
		Planning:  planningPhase.idle(),
		Execution: executionPhase.idle(),
	}
}
