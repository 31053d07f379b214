package ai

import "fmt"

// FallbackHandler is the terminal, deterministic path for anything
// that cannot or should not be executed. Build never fails.
type FallbackHandler struct{}

// Build composes a fallback reply for a command that did not clear
// the confidence bar, or whose interpretation failed outright.
func (FallbackHandler) Build(cmd InterpretedCommand) (message, suggested string) {
	switch cmd.Failure {
	case FailureTimeout:
		return "That took too long to interpret. You can run the command directly instead.",
			FormatManual(cmd)
	case FailureUnavailable:
		return "The assistant is unavailable right now. You can run the command directly instead.",
			FormatManual(cmd)
	case FailureParse:
		return "I couldn't work out a command from that. Try rephrasing, or use a direct command.",
			FormatManual(cmd)
	}
	if cmd.Action == ActionUnknown {
		return "I'm not sure what you'd like to do. Try something like \"add a task to buy milk\" or \"show my pending tasks\".",
			"/help"
	}
	return fmt.Sprintf("I think you want to %s a task but I'm not confident enough to act. You can run it directly:", cmd.Action),
		FormatManual(cmd)
}

// FormatManual renders the slash-command equivalent of an interpreted
// command, for users who prefer to bypass interpretation.
func FormatManual(cmd InterpretedCommand) string {
	switch cmd.Action {
	case ActionAdd:
		if cmd.Params.Title != "" {
			return "/add " + cmd.Params.Title
		}
		return "/add <title>"
	case ActionList:
		if cmd.Params.StatusFilter != "" {
			return "/list " + cmd.Params.StatusFilter
		}
		return "/list"
	case ActionComplete:
		return "/done " + targetRef(cmd)
	case ActionUpdate:
		if cmd.Params.TaskID != "" && cmd.Params.Field != "" {
			return fmt.Sprintf("/update %s %s %s", cmd.Params.TaskID, cmd.Params.Field, cmd.Params.NewValue)
		}
		return "/update <task-id> <field> <value>"
	case ActionDelete:
		return "/delete " + targetRef(cmd)
	default:
		return "/help"
	}
}

func targetRef(cmd InterpretedCommand) string {
	if cmd.Params.TaskID != "" {
		return cmd.Params.TaskID
	}
	if cmd.Params.TitleMatch != "" {
		return cmd.Params.TitleMatch
	}
	return "<task-id>"
}
