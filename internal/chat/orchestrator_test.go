package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"taskline/internal/ai"
	"taskline/internal/chat"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/llm"
	"taskline/internal/migrate"
)

// scriptedClient returns a fixed payload for every completion.
type scriptedClient struct {
	out string
	err error
}

func (s *scriptedClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	return s.out, s.err
}

type chatEnv struct {
	Orch   chat.Orchestrator
	Engine engine.Engine
	User   domain.User
	Client *scriptedClient
	Clock  *time.Time
	Ctx    context.Context
}

func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	ctx := context.Background()
	u, err := eng.CreateUser(ctx, "chat@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	client := &scriptedClient{}
	// Advance one second per read so message timestamps order
	// deterministically.
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	orch := chat.Orchestrator{
		Conversations: chat.ConversationService{Repo: eng.Repo, Now: now},
		Interpreter:   ai.NewInterpreter(client, cfg.AI.Timeout(), nil),
		Thresholds:    ai.Thresholds{High: cfg.AI.HighConfidence, Low: cfg.AI.LowConfidence},
		Executor:      ai.Executor{Engine: eng},
		Repo:          eng.Repo,
		Config:        cfg,
		Now:           now,
	}
	return &chatEnv{Orch: orch, Engine: eng, User: u, Client: client, Clock: &clock, Ctx: ctx}
}

func (e *chatEnv) script(action string, confidence float64, extra string) {
	if extra != "" {
		extra = "," + extra
	}
	e.Client.out = fmt.Sprintf(`{"action":%q,"confidence":%g%s}`, action, confidence, extra)
}

func (e *chatEnv) messages(t *testing.T, conversationID string) []domain.Message {
	t.Helper()
	msgs, err := e.Engine.Repo.ListMessages(e.Ctx, conversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return msgs
}

func TestSendExecutesConfidentCommand(t *testing.T) {
	env := newChatEnv(t)
	env.script("add", 0.95, `"title":"buy milk"`)

	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "please add a task to buy milk")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Outcome != chat.OutcomeExecuted {
		t.Fatalf("expected executed, got %s (%s)", reply.Outcome, reply.Message)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, env.User.ID, "all")
	if err != nil || len(tasks) != 1 || tasks[0].Title != "buy milk" {
		t.Fatalf("expected task created, got %v (%v)", tasks, err)
	}

	msgs := env.messages(t, reply.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(msgs))
	}
	if msgs[1].GeneratedCommand == nil || msgs[1].ConfidenceScore == nil {
		t.Fatalf("assistant turn should record the interpreted command")
	}
}

func TestSendMidConfidenceAsksFirst(t *testing.T) {
	env := newChatEnv(t)
	env.script("add", 0.65, `"title":"maybe this"`)

	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "hm, add maybe this?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Outcome != chat.OutcomeAwaitingConfirmation || !reply.NeedsConfirmation || reply.ConfirmationToken == "" {
		t.Fatalf("expected confirmation request, got %+v", reply)
	}
	tasks, _ := env.Engine.ListTasks(env.Ctx, env.User.ID, "all")
	if len(tasks) != 0 {
		t.Fatalf("nothing should execute before approval")
	}

	declined, err := env.Orch.Confirm(env.Ctx, env.User.ID, reply.ConfirmationToken, false)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if declined.Outcome != chat.OutcomeCancelled {
		t.Fatalf("expected cancelled on decline, got %s", declined.Outcome)
	}
	tasks, _ = env.Engine.ListTasks(env.Ctx, env.User.ID, "all")
	if len(tasks) != 0 {
		t.Fatalf("decline must not execute the command")
	}
	// user turn, confirm prompt, decline acknowledgement
	if n := len(env.messages(t, reply.ConversationID)); n != 3 {
		t.Fatalf("expected 3 turns, got %d", n)
	}
}

func TestSendLowConfidenceFallsBack(t *testing.T) {
	env := newChatEnv(t)
	env.script("add", 0.2, `"title":"???"`)

	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "do the thing with the stuff")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Outcome != chat.OutcomeFallback || !reply.IsFallback {
		t.Fatalf("expected fallback, got %s", reply.Outcome)
	}
	if reply.SuggestedCommand == "" {
		t.Fatalf("fallback should suggest a manual command")
	}
	tasks, _ := env.Engine.ListTasks(env.Ctx, env.User.ID, "all")
	if len(tasks) != 0 {
		t.Fatalf("fallback must not execute")
	}
}

func TestDeleteAlwaysRequiresConfirmation(t *testing.T) {
	env := newChatEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{UserID: env.User.ID, Title: "pay rent"})
	if err != nil {
		t.Fatal(err)
	}
	env.script("delete", 0.99, fmt.Sprintf(`"task_id":%q`, task.ID))

	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "delete the rent task")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Outcome != chat.OutcomeAwaitingConfirmation {
		t.Fatalf("delete must be confirmed even at high confidence, got %s", reply.Outcome)
	}

	approved, err := env.Orch.Confirm(env.Ctx, env.User.ID, reply.ConfirmationToken, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if approved.Outcome != chat.OutcomeExecuted {
		t.Fatalf("expected executed, got %s (%s)", approved.Outcome, approved.Message)
	}
	tasks, _ := env.Engine.ListTasks(env.Ctx, env.User.ID, "all")
	if len(tasks) != 0 {
		t.Fatalf("task should be gone after approval")
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	env := newChatEnv(t)
	env.script("add", 0.65, `"title":"slowpoke"`)

	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "add slowpoke maybe")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	*env.Clock = env.Clock.Add(10 * time.Minute)

	res, err := env.Orch.Confirm(env.Ctx, env.User.ID, reply.ConfirmationToken, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Outcome != chat.OutcomeCancelled {
		t.Fatalf("expected cancelled on expiry, got %s", res.Outcome)
	}
	tasks, _ := env.Engine.ListTasks(env.Ctx, env.User.ID, "all")
	if len(tasks) != 0 {
		t.Fatalf("expired command must not execute")
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	env := newChatEnv(t)
	res, err := env.Orch.Confirm(env.Ctx, env.User.ID, "no-such-token", true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Outcome != chat.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %s", res.Outcome)
	}
}

func TestConfirmTokenScopedToUser(t *testing.T) {
	env := newChatEnv(t)
	other, err := env.Engine.CreateUser(env.Ctx, "intruder@example.com", "secret-pass")
	if err != nil {
		t.Fatal(err)
	}
	env.script("add", 0.65, `"title":"private"`)
	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "add private maybe")
	if err != nil {
		t.Fatal(err)
	}

	res, err := env.Orch.Confirm(env.Ctx, other.ID, reply.ConfirmationToken, true)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Outcome != chat.OutcomeCancelled {
		t.Fatalf("foreign token must not resolve, got %s", res.Outcome)
	}
	// the owner can still use it
	res, err = env.Orch.Confirm(env.Ctx, env.User.ID, reply.ConfirmationToken, true)
	if err != nil || res.Outcome != chat.OutcomeExecuted {
		t.Fatalf("owner confirm: %s (%v)", res.Outcome, err)
	}
}

func TestManualCommandBypassesInterpretation(t *testing.T) {
	env := newChatEnv(t)
	env.Client.err = llm.ErrUnavailable // the model must never be needed

	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "/add water the plants")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Outcome != chat.OutcomeExecuted {
		t.Fatalf("expected manual execute, got %s (%s)", reply.Outcome, reply.Message)
	}

	// manual delete executes without a confirmation round-trip
	tasks, _ := env.Engine.ListTasks(env.Ctx, env.User.ID, "all")
	reply, err = env.Orch.Send(env.Ctx, env.User.ID, reply.ConversationID, "/delete "+tasks[0].ID)
	if err != nil {
		t.Fatalf("send delete: %v", err)
	}
	if reply.Outcome != chat.OutcomeExecuted {
		t.Fatalf("expected manual delete executed, got %s (%s)", reply.Outcome, reply.Message)
	}
}

func TestInterpreterFailureFallsBack(t *testing.T) {
	env := newChatEnv(t)
	env.Client.err = llm.ErrUnavailable

	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", "add a task to buy milk")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Outcome != chat.OutcomeFallback {
		t.Fatalf("expected fallback on outage, got %s", reply.Outcome)
	}
	// the exchange is still fully recorded
	if n := len(env.messages(t, reply.ConversationID)); n != 2 {
		t.Fatalf("expected recorded turns despite outage, got %d", n)
	}
}

func TestMessageValidation(t *testing.T) {
	env := newChatEnv(t)
	if _, err := env.Orch.Send(env.Ctx, env.User.ID, "", "   "); !errors.Is(err, chat.ErrInvalidMessage) {
		t.Fatalf("expected invalid message for blank, got %v", err)
	}
	long := strings.Repeat("a", env.Orch.Config.Chat.MaxMessageLength+1)
	if _, err := env.Orch.Send(env.Ctx, env.User.ID, "", long); !errors.Is(err, chat.ErrInvalidMessage) {
		t.Fatalf("expected invalid message for over-length, got %v", err)
	}
	convs, err := env.Engine.Repo.ListConversations(env.Ctx, env.User.ID)
	if err != nil || len(convs) != 0 {
		t.Fatalf("rejected messages must not persist anything, got %d", len(convs))
	}
}

func TestAutoTitleFromFirstMessage(t *testing.T) {
	env := newChatEnv(t)
	env.script("list", 0.9, "")

	first := "show me everything on my plate"
	reply, err := env.Orch.Send(env.Ctx, env.User.ID, "", first)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.Orch.Send(env.Ctx, env.User.ID, reply.ConversationID, "and now just pending"); err != nil {
		t.Fatalf("second send: %v", err)
	}

	conv, err := env.Engine.Repo.GetConversation(env.Ctx, env.User.ID, reply.ConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.Title == nil || *conv.Title != first {
		t.Fatalf("expected title from first message, got %v", conv.Title)
	}
}

func TestUnknownConversationRejected(t *testing.T) {
	env := newChatEnv(t)
	env.script("list", 0.9, "")
	if _, err := env.Orch.Send(env.Ctx, env.User.ID, "missing-conv", "hello"); err == nil {
		t.Fatalf("expected error for unknown conversation")
	}
}
