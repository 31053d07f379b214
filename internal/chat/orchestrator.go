package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskline/internal/ai"
	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/repo"
)

// ErrInvalidMessage rejects a request before anything is persisted.
var ErrInvalidMessage = errors.New("invalid message")

// Turn outcomes surfaced to clients.
const (
	OutcomeExecuted             = "executed"
	OutcomeFailed               = "failed"
	OutcomeAwaitingConfirmation = "awaiting_confirmation"
	OutcomeFallback             = "fallback"
	OutcomeCancelled            = "cancelled"
)

// Reply is the uniform result of a chat turn.
type Reply struct {
	ConversationID    string        `json:"conversation_id"`
	Message           string        `json:"message"`
	Outcome           string        `json:"outcome"`
	Confidence        float64       `json:"confidence"`
	IsFallback        bool          `json:"is_fallback"`
	NeedsConfirmation bool          `json:"needs_confirmation"`
	ConfirmationToken string        `json:"confirmation_token,omitempty"`
	SuggestedCommand  string        `json:"suggested_command,omitempty"`
	Tasks             []domain.Task `json:"tasks,omitempty"`
	Failure           *ai.Failure   `json:"failure,omitempty"`
}

// Orchestrator drives one chat turn end to end: persist the user
// message, interpret it, route by confidence, execute or defer, and
// persist exactly one assistant reply.
type Orchestrator struct {
	Conversations ConversationService
	Interpreter   ai.Interpreter
	Thresholds    ai.Thresholds
	Executor      ai.Executor
	Fallback      ai.FallbackHandler
	Repo          repo.Repo
	Config        *config.Config
	Log           *zap.Logger
	Now           func() time.Time
}

func (o Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Orchestrator) log() *zap.Logger {
	if o.Log != nil {
		return o.Log
	}
	return zap.NewNop()
}

// Send processes one user message. The user turn is stored before
// interpretation; if history cannot be written the turn fails rather
// than replying without a record.
func (o Orchestrator) Send(ctx context.Context, userID, conversationID, message string) (Reply, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Reply{}, fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}
	if max := o.Config.Chat.MaxMessageLength; len(message) > max {
		return Reply{}, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidMessage, max)
	}

	conv, err := o.Conversations.EnsureConversation(ctx, userID, conversationID)
	if err != nil {
		return Reply{}, err
	}
	recent, err := o.Conversations.LoadRecent(ctx, conv.ID, o.Config.AI.ContextMessageLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if _, err := o.Conversations.Append(ctx, conv.ID, domain.RoleUser, message, nil, nil); err != nil {
		return Reply{}, err
	}
	if err := o.Conversations.AutoTitle(ctx, conv.ID); err != nil {
		o.log().Warn("auto-title failed", zap.String("conversation", conv.ID), zap.Error(err))
	}

	var cmd ai.InterpretedCommand
	if manual, ok := ParseManual(trimmed); ok {
		cmd = manual
		if cmd.Action == ai.ActionUnknown {
			return o.finish(ctx, conv.ID, cmd, Reply{
				Outcome:          OutcomeFallback,
				IsFallback:       true,
				Message:          "Unrecognized command. Available: /add, /list, /done, /update, /delete.",
				SuggestedCommand: "/help",
			})
		}
		// Manual commands are explicit; they execute without a
		// confirmation round-trip.
		return o.finish(ctx, conv.ID, cmd, o.run(ctx, userID, cmd))
	}

	cmd = o.Interpreter.Interpret(ctx, message, recent)
	policy := o.Thresholds.Route(cmd.Confidence)
	if cmd.Failure != ai.FailureNone || policy == ai.PolicyFallback {
		msg, suggested := o.Fallback.Build(cmd)
		return o.finish(ctx, conv.ID, cmd, Reply{
			Outcome:          OutcomeFallback,
			IsFallback:       true,
			Message:          msg,
			SuggestedCommand: suggested,
			Confidence:       cmd.Confidence,
		})
	}

	if policy == ai.PolicyConfirmFirst || cmd.Destructive() {
		reply, err := o.defer_(ctx, userID, conv.ID, cmd)
		if err != nil {
			return Reply{}, err
		}
		return o.finish(ctx, conv.ID, cmd, reply)
	}
	return o.finish(ctx, conv.ID, cmd, o.run(ctx, userID, cmd))
}

// run executes immediately and shapes the reply.
func (o Orchestrator) run(ctx context.Context, userID string, cmd ai.InterpretedCommand) Reply {
	res := o.Executor.Execute(ctx, userID, cmd)
	reply := Reply{
		Message:    res.Summary,
		Confidence: cmd.Confidence,
		Tasks:      res.Tasks,
		Failure:    res.Failure,
	}
	if res.Outcome == ai.OutcomeSuccess {
		reply.Outcome = OutcomeExecuted
	} else {
		reply.Outcome = OutcomeFailed
	}
	return reply
}

// defer_ stores the command under a one-time token and asks the user
// to confirm.
func (o Orchestrator) defer_(ctx context.Context, userID, conversationID string, cmd ai.InterpretedCommand) (Reply, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Reply{}, err
	}
	now := o.now().UTC()
	p := domain.PendingCommand{
		Token:          uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		CommandJSON:    string(payload),
		CreatedAt:      now.Format(time.RFC3339),
		ExpiresAt:      now.Add(o.Config.Auth.ConfirmTTL()).Format(time.RFC3339),
	}
	if err := o.Repo.InsertPendingCommand(ctx, p); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return Reply{
		Outcome:           OutcomeAwaitingConfirmation,
		NeedsConfirmation: true,
		ConfirmationToken: p.Token,
		Confidence:        cmd.Confidence,
		Message:           confirmPrompt(cmd),
		SuggestedCommand:  ai.FormatManual(cmd),
	}, nil
}

func confirmPrompt(cmd ai.InterpretedCommand) string {
	target := cmd.Params.TaskID
	if target == "" {
		target = cmd.Params.TitleMatch
	}
	switch cmd.Action {
	case ai.ActionDelete:
		return fmt.Sprintf("Delete the task %q? This can't be undone.", target)
	case ai.ActionComplete:
		return fmt.Sprintf("Mark %q as done?", target)
	case ai.ActionUpdate:
		return fmt.Sprintf("Change the %s of task %s to %q?", cmd.Params.Field, cmd.Params.TaskID, cmd.Params.NewValue)
	case ai.ActionAdd:
		return fmt.Sprintf("Add a task titled %q?", cmd.Params.Title)
	default:
		return fmt.Sprintf("Run %s?", ai.FormatManual(cmd))
	}
}

// Confirm resolves a pending token. Approve executes the stored
// command exactly as interpreted; decline, expiry, and unknown tokens
// all end the exchange as cancelled. Every path consumes the token.
func (o Orchestrator) Confirm(ctx context.Context, userID, token string, approve bool) (Reply, error) {
	p, err := o.Repo.GetPendingCommand(ctx, userID, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Reply{
				Outcome: OutcomeCancelled,
				Message: "That confirmation has expired or was already handled. Please repeat your request.",
				Failure: &ai.Failure{Kind: "CONFIRMATION_EXPIRED", Message: "unknown or consumed token"},
			}, nil
		}
		return Reply{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := o.Repo.DeletePendingCommand(ctx, p.Token); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return Reply{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var cmd ai.InterpretedCommand
	if err := json.Unmarshal([]byte(p.CommandJSON), &cmd); err != nil {
		return Reply{}, err
	}

	if expires, perr := time.Parse(time.RFC3339, p.ExpiresAt); perr == nil && o.now().UTC().After(expires) {
		reply := Reply{
			Outcome: OutcomeCancelled,
			Message: "That confirmation has expired. Please repeat your request.",
			Failure: &ai.Failure{Kind: "CONFIRMATION_EXPIRED", Message: "token expired"},
		}
		return o.finish(ctx, p.ConversationID, cmd, reply)
	}
	if !approve {
		return o.finish(ctx, p.ConversationID, cmd, Reply{
			Outcome: OutcomeCancelled,
			Message: "Okay, I won't do that.",
		})
	}
	return o.finish(ctx, p.ConversationID, cmd, o.run(ctx, userID, cmd))
}

// finish stores the single assistant turn for this exchange and stamps
// the reply with its conversation. A failed history write voids the
// reply.
func (o Orchestrator) finish(ctx context.Context, conversationID string, cmd ai.InterpretedCommand, reply Reply) (Reply, error) {
	reply.ConversationID = conversationID

	var generated *string
	var confidence *float64
	if cmd.Action != ai.ActionUnknown || cmd.Failure != ai.FailureNone {
		if b, err := json.Marshal(cmd); err == nil {
			s := string(b)
			generated = &s
		}
		c := cmd.Confidence
		confidence = &c
	}
	if _, err := o.Conversations.Append(ctx, conversationID, domain.RoleAssistant, reply.Message, generated, confidence); err != nil {
		return Reply{}, err
	}
	return reply, nil
}
