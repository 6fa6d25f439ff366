package models

import (
	"fmt"
	"time"
)

// JobState is the lifecycle state of a job row.
type JobState string

const (
	JobUnapproved JobState = "unapproved"
	JobQueued     JobState = "queued"
	JobRunning    JobState = "running"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
	JobWithdrawn  JobState = "withdrawn"
)

// Terminal reports whether the runner is finished with this state.
// Withdrawn and failed rows only move again through operator actions.
func (s JobState) Terminal() bool {
	switch s {
	case JobDone, JobFailed, JobWithdrawn:
		return true
	}
	return false
}

// JobAction is an operator transition: valid only from OldState, landing
// in NewState. PastLabel is the human form used in state messages and
// notification mail ("approved", "cancelled", ...).
type JobAction struct {
	Name      string
	PastLabel string
	OldState  JobState
	NewState  JobState
}

var (
	ActionApprove = JobAction{"approve", "approved", JobUnapproved, JobQueued}
	ActionReject  = JobAction{"reject", "rejected", JobUnapproved, JobWithdrawn}
	ActionCancel  = JobAction{"cancel", "cancelled", JobQueued, JobFailed}
	ActionAbort   = JobAction{"abort", "aborted", JobRunning, JobFailed}
	ActionRepeat  = JobAction{"repeat", "repeated", JobDone, JobQueued}
	ActionRetry   = JobAction{"retry", "retried", JobFailed, JobQueued}
)

// Actions lists every operator transition.
var Actions = []JobAction{
	ActionApprove, ActionReject, ActionCancel, ActionAbort, ActionRepeat, ActionRetry,
}

// InvalidTransitionError reports an action applied to a job in the wrong
// state.
type InvalidTransitionError struct {
	Action JobAction
	State  JobState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a job in state %s (needs %s)",
		e.Action.Name, e.State, e.Action.OldState)
}

// Job is the central persisted record: a typed request with string-only
// arguments, owned by a member (empty for sign-up jobs).
type Job struct {
	ID           int64             `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	Owner        string            `json:"owner,omitempty"`
	Type         string            `json:"type"`
	State        JobState          `json:"state"`
	StateMessage string            `json:"state_message,omitempty"`
	Environment  string            `json:"environment,omitempty"`
	Args         map[string]string `json:"args"`
}

// Arg returns a named argument, empty when absent.
func (j *Job) Arg(key string) string {
	return j.Args[key]
}

// Transition applies an operator action, validating the current state.
func (j *Job) Transition(action JobAction) error {
	if j.State != action.OldState {
		return &InvalidTransitionError{Action: action, State: j.State}
	}
	j.State = action.NewState
	j.StateMessage = "Job " + action.PastLabel
	return nil
}

// MarkRunning is the runner's queued -> running claim.
func (j *Job) MarkRunning() error {
	if j.State != JobQueued {
		return &InvalidTransitionError{
			Action: JobAction{Name: "run", PastLabel: "started", OldState: JobQueued, NewState: JobRunning},
			State:  j.State,
		}
	}
	j.State = JobRunning
	j.StateMessage = ""
	return nil
}

// MarkDone finishes a running job, optionally with a message for the
// submitter.
func (j *Job) MarkDone(message string) {
	j.State = JobDone
	j.StateMessage = message
}

// MarkFailed fails a running job with a short, user-visible message.
func (j *Job) MarkFailed(message string) {
	j.State = JobFailed
	j.StateMessage = message
}

// LogLevel mirrors the job_log level enumeration.
type LogLevel string

const (
	LogDebug    LogLevel = "debug"
	LogInfo     LogLevel = "info"
	LogWarning  LogLevel = "warning"
	LogError    LogLevel = "error"
	LogCritical LogLevel = "critical"
)

// LogType classifies a job_log row.
type LogType string

const (
	LogStarted  LogType = "started"
	LogProgress LogType = "progress"
	LogOutput   LogType = "output"
	LogDone     LogType = "done"
	LogTypeFail LogType = "failed"
	LogNote     LogType = "note"
)

// JobLogEntry is one append-only row of a job's structured log. Raw
// carries command output or a failure trace when present.
type JobLogEntry struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
	Level     LogLevel  `json:"level"`
	Type      LogType   `json:"type"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw,omitempty"`
}
