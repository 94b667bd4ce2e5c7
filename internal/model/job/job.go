package job

import "time"

// Mode selects which final report the replay pipeline produces.
type Mode string

const (
	ModeReplay     Mode = "replay"
	ModePostmortem Mode = "postmortem"
)

// Valid reports whether m is one of the known analysis modes.
func (m Mode) Valid() bool {
	return m == ModeReplay || m == ModePostmortem
}

// Status is the lifecycle state of a job. Transitions are monotonic:
// queued -> running -> complete | errored. Terminal states never change.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusErrored  Status = "errored"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusErrored
}

// Params carries the caller-supplied inputs of one analysis job.
type Params struct {
	SessionID   string `json:"sessionId"`
	Persona     string `json:"persona"`
	UserMessage string `json:"userMessage"`
	Mode        Mode   `json:"mode"`
}

// Output is present once a job completes.
type Output struct {
	Title    string `json:"title"`
	Mode     Mode   `json:"mode"`
	Scenario string `json:"scenario"`
	Analysis string `json:"analysis"`
	Result   string `json:"result"`
}

// StepRecord is one durably recorded pipeline step. Once written it is
// immutable and its computation is never re-executed for the same job.
type StepRecord struct {
	Name       string    `json:"name"`
	Result     string    `json:"result"`
	RecordedAt time.Time `json:"recordedAt"`
}

// State is the queryable view of a job.
type State struct {
	ID        string       `json:"id"`
	Params    Params       `json:"params"`
	Status    Status       `json:"status"`
	Output    *Output      `json:"output,omitempty"`
	Error     string       `json:"error,omitempty"`
	Steps     []StepRecord `json:"steps,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
