// Package ai holds the command-interpretation pipeline: the closed
// command schema, the interpreter over an llm.Client, confidence
// routing, command execution, and the deterministic fallback path.
package ai

import (
	"fmt"

	"taskline/internal/domain"
)

// Action is the closed set of commands the pipeline recognizes. The
// model cannot dispatch anything outside this set; everything it
// produces is matched against these members, with Unknown as the
// explicit fallback.
type Action string

const (
	ActionAdd      Action = "add"
	ActionList     Action = "list"
	ActionComplete Action = "complete"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionUnknown  Action = "unknown"
)

func ParseAction(s string) Action {
	switch Action(s) {
	case ActionAdd, ActionList, ActionComplete, ActionUpdate, ActionDelete:
		return Action(s)
	default:
		return ActionUnknown
	}
}

// Updatable fields for ActionUpdate.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
)

// Params is the variant payload of an interpreted command; which
// fields are meaningful depends on the action.
type Params struct {
	Title        string `json:"title,omitempty"`        // add
	Description  string `json:"description,omitempty"`  // add
	StatusFilter string `json:"status_filter,omitempty"` // list: all|pending|completed
	TaskID       string `json:"task_id,omitempty"`       // complete, update, delete
	TitleMatch   string `json:"title_match,omitempty"`   // complete, delete: fuzzy target
	Field        string `json:"field,omitempty"`         // update: title|description
	NewValue     string `json:"new_value,omitempty"`     // update
}

// FailureReason tags a synthetic Unknown command with why
// interpretation failed, so the fallback can explain it precisely.
type FailureReason string

const (
	FailureNone        FailureReason = ""
	FailureTimeout     FailureReason = "timeout"
	FailureParse       FailureReason = "parse_error"
	FailureUnavailable FailureReason = "unavailable"
)

// InterpretedCommand is the structured result of interpretation.
// Invariant: ActionUnknown always carries confidence 0.
type InterpretedCommand struct {
	Action     Action        `json:"action"`
	Params     Params        `json:"params"`
	Confidence float64       `json:"confidence"`
	Failure    FailureReason `json:"failure,omitempty"`

	// RawModelOutput is diagnostic only. It is logged at debug level
	// and never persisted or rendered to users.
	RawModelOutput string `json:"-"`
}

// Destructive reports whether the action requires an explicit
// confirmation round-trip regardless of confidence.
func (c InterpretedCommand) Destructive() bool {
	return c.Action == ActionDelete
}

// ValidateSlots checks required parameters for the chosen action.
// The interpreter uses it to demote slot-incomplete commands to
// Unknown; the executor uses it as the gate before any store call.
func (c InterpretedCommand) ValidateSlots() error {
	switch c.Action {
	case ActionAdd:
		if c.Params.Title == "" {
			return fmt.Errorf("add requires a title")
		}
	case ActionList:
		switch c.Params.StatusFilter {
		case "", "all", "pending", "completed":
		default:
			return fmt.Errorf("list filter must be all, pending or completed")
		}
	case ActionComplete, ActionDelete:
		if c.Params.TaskID == "" && c.Params.TitleMatch == "" {
			return fmt.Errorf("%s requires a task id or a title reference", c.Action)
		}
	case ActionUpdate:
		if c.Params.TaskID == "" {
			return fmt.Errorf("update requires a task id")
		}
		if c.Params.Field != FieldTitle && c.Params.Field != FieldDescription {
			return fmt.Errorf("update field must be title or description")
		}
		if c.Params.NewValue == "" {
			return fmt.Errorf("update requires a new value")
		}
	case ActionUnknown:
		return fmt.Errorf("nothing to execute")
	default:
		return fmt.Errorf("unrecognized action %q", c.Action)
	}
	return nil
}

// Outcome of executing a command.
type Outcome string

const (
	OutcomeSuccess              Outcome = "success"
	OutcomeFailed               Outcome = "failed"
	OutcomeAwaitingConfirmation Outcome = "awaiting_confirmation"
)

// FailureKind is the pipeline error taxonomy surfaced in results.
type FailureKind string

const (
	FailValidation   FailureKind = "VALIDATION_ERROR"
	FailAmbiguous    FailureKind = "AMBIGUOUS_MATCH"
	FailNotFound     FailureKind = "NOT_FOUND"
	FailUnauthorized FailureKind = "UNAUTHORIZED"
	FailPersistence  FailureKind = "PERSISTENCE_FAILURE"
)

type Candidate struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

type Failure struct {
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// ExecutionResult is the uniform envelope the executor returns for
// every command, success or not.
type ExecutionResult struct {
	Outcome        Outcome       `json:"outcome"`
	Summary        string        `json:"summary"`
	AffectedTaskID string        `json:"affected_task_id,omitempty"`
	Tasks          []domain.Task `json:"tasks,omitempty"`
	Failure        *Failure      `json:"failure,omitempty"`
}

func failedResult(kind FailureKind, msg string) ExecutionResult {
	return ExecutionResult{
		Outcome: OutcomeFailed,
		Summary: msg,
		Failure: &Failure{Kind: kind, Message: msg},
	}
}
