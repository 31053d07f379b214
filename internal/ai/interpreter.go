package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/llm"
)

const systemPrompt = `You are the intent classifier for a task manager.
Map the user's latest message to exactly one JSON object, no prose:
{"action": "add"|"list"|"complete"|"update"|"delete"|"unknown",
 "confidence": 0.0-1.0,
 "title": "...",          // add: the task title
 "description": "...",    // add, optional
 "status_filter": "all"|"pending"|"completed",  // list, optional
 "task_id": "...",        // complete/update/delete when the user names an id
 "title_match": "...",    // complete/delete when the user references a task by words
 "field": "title"|"description",  // update
 "new_value": "..."}      // update
Use "unknown" with low confidence when the request is not a task
command. Never invent task ids.`

// Interpreter turns a user message plus recent conversation context
// into an InterpretedCommand. It never returns an error: every failure
// mode is encoded as an Unknown command with a failure tag so the
// orchestrator can route it.
type Interpreter struct {
	Client  llm.Client
	Timeout time.Duration
	Log     *zap.Logger
}

func NewInterpreter(client llm.Client, timeout time.Duration, log *zap.Logger) Interpreter {
	if log == nil {
		log = zap.NewNop()
	}
	return Interpreter{Client: client, Timeout: timeout, Log: log}
}

func (i Interpreter) Interpret(ctx context.Context, message string, recent []domain.Message) InterpretedCommand {
	req := llm.Request{System: systemPrompt}
	for _, m := range recent {
		req.Turns = append(req.Turns, llm.Turn{Role: m.Role, Content: m.Content})
	}
	req.Turns = append(req.Turns, llm.Turn{Role: domain.RoleUser, Content: message})

	timeout := i.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := i.Client.Complete(callCtx, req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			i.Log.Warn("interpretation timed out", zap.Duration("timeout", timeout))
			return unknownCommand(FailureTimeout, raw)
		case errors.Is(err, llm.ErrUnavailable):
			i.Log.Warn("model unavailable", zap.Error(err))
			return unknownCommand(FailureUnavailable, raw)
		case errors.Is(err, context.Canceled):
			return unknownCommand(FailureTimeout, raw)
		default:
			i.Log.Warn("model call failed", zap.Error(err))
			return unknownCommand(FailureUnavailable, raw)
		}
	}

	cmd, ok := parseModelOutput(raw)
	if !ok {
		i.Log.Warn("unparseable model output", zap.Int("len", len(raw)))
		i.Log.Debug("raw model output", zap.String("raw", raw))
		return unknownCommand(FailureParse, raw)
	}
	i.Log.Debug("interpreted command",
		zap.String("action", string(cmd.Action)),
		zap.Float64("confidence", cmd.Confidence),
		zap.String("raw", raw))
	return cmd
}

func unknownCommand(reason FailureReason, raw string) InterpretedCommand {
	return InterpretedCommand{
		Action:         ActionUnknown,
		Confidence:     0,
		Failure:        reason,
		RawModelOutput: raw,
	}
}

// parseModelOutput maps the model's JSON onto the command schema. A
// command whose required slots are missing is demoted to Unknown
// rather than guessed at.
func parseModelOutput(raw string) (InterpretedCommand, bool) {
	payload := stripFences(raw)
	if !gjson.Valid(payload) {
		return InterpretedCommand{}, false
	}
	doc := gjson.Parse(payload)
	actionField := doc.Get("action")
	if !actionField.Exists() {
		return InterpretedCommand{}, false
	}

	cmd := InterpretedCommand{
		Action: ParseAction(actionField.String()),
		Params: Params{
			Title:        doc.Get("title").String(),
			Description:  doc.Get("description").String(),
			StatusFilter: doc.Get("status_filter").String(),
			TaskID:       doc.Get("task_id").String(),
			TitleMatch:   doc.Get("title_match").String(),
			Field:        doc.Get("field").String(),
			NewValue:     doc.Get("new_value").String(),
		},
		Confidence:     clamp01(doc.Get("confidence").Float()),
		RawModelOutput: raw,
	}

	if cmd.Action != ActionUnknown && cmd.Action != ActionList {
		if err := cmd.ValidateSlots(); err != nil {
			cmd.Action = ActionUnknown
			cmd.Params = Params{}
		}
	}
	if cmd.Action == ActionUnknown {
		cmd.Confidence = 0
	}
	return cmd, true
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
