package chat

import (
	"strings"

	"github.com/google/uuid"

	"taskline/internal/ai"
)

// ParseManual recognizes slash commands, which bypass interpretation
// entirely. A recognized command carries confidence 1.0 and skips the
// router. Returns ok=false for anything that isn't a slash command.
func ParseManual(message string) (ai.InterpretedCommand, bool) {
	msg := strings.TrimSpace(message)
	if !strings.HasPrefix(msg, "/") {
		return ai.InterpretedCommand{}, false
	}
	verb, rest, _ := strings.Cut(msg[1:], " ")
	rest = strings.TrimSpace(rest)

	cmd := ai.InterpretedCommand{Confidence: 1.0}
	switch strings.ToLower(verb) {
	case "add":
		cmd.Action = ai.ActionAdd
		cmd.Params.Title = rest
	case "list":
		cmd.Action = ai.ActionList
		cmd.Params.StatusFilter = strings.ToLower(rest)
	case "done", "complete":
		cmd.Action = ai.ActionComplete
		setTarget(&cmd, rest)
	case "update":
		cmd.Action = ai.ActionUpdate
		id, tail, _ := strings.Cut(rest, " ")
		field, value, _ := strings.Cut(strings.TrimSpace(tail), " ")
		cmd.Params.TaskID = id
		cmd.Params.Field = strings.ToLower(field)
		cmd.Params.NewValue = strings.TrimSpace(value)
	case "delete", "remove":
		cmd.Action = ai.ActionDelete
		setTarget(&cmd, rest)
	default:
		cmd.Action = ai.ActionUnknown
		cmd.Confidence = 0
	}
	return cmd, true
}

// setTarget treats a well-formed UUID as a task id and anything else
// as a title reference.
func setTarget(cmd *ai.InterpretedCommand, rest string) {
	if _, err := uuid.Parse(rest); err == nil {
		cmd.Params.TaskID = rest
	} else {
		cmd.Params.TitleMatch = rest
	}
}
