package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"taskline/internal/ai"
	"taskline/internal/chat"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/llm"
	"taskline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	orch := chat.Orchestrator{
		Conversations: chat.ConversationService{Repo: e.Repo},
		Interpreter:   ai.NewInterpreter(&llm.MockClient{}, cfg.AI.Timeout(), nil),
		Thresholds:    ai.Thresholds{High: cfg.AI.HighConfidence, Low: cfg.AI.LowConfidence},
		Executor:      ai.Executor{Engine: e},
		Repo:          e.Repo,
		Config:        cfg,
	}
	handler, err := New(Config{
		Engine:       e,
		Orchestrator: orch,
		BasePath:     "/v1",
		Auth:         AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func registerUser(t *testing.T, srv *testServer, email string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"email":    email,
		"password": "secret-pass",
	}, "")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if auth.Token == "" {
		t.Fatalf("expected token")
	}
	return auth.Token
}

func TestAuthAndTaskFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	token := registerUser(t, srv, "flow@example.com")

	// unauthenticated requests are rejected
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "Ship feature"}, token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+created.ID+"/complete", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done TaskResponse
	_ = json.Unmarshal(data, &done)
	if !done.IsCompleted {
		t.Fatalf("expected completed task")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?status=completed", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var listed []TaskResponse
	_ = json.Unmarshal(data, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected one completed task, got %d", len(listed))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+created.ID, nil, token)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+created.ID, nil, token)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestTaskIsolationBetweenUsers(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	alice := registerUser(t, srv, "alice@example.com")
	bob := registerUser(t, srv, "bob@example.com")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "private"}, alice)
	var created TaskResponse
	_ = json.Unmarshal(data, &created)

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+created.ID, nil, bob)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected foreign task hidden, got %d", res.StatusCode)
	}
}

func TestChatMessageExecutesConfidentCommand(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	token := registerUser(t, srv, "chatter@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/chat/message", map[string]any{
		"message": "add a task to buy milk",
	}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d: %s", res.StatusCode, string(data))
	}
	var reply ChatReplyResponse
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Outcome != chat.OutcomeExecuted {
		t.Fatalf("expected executed, got %s (%s)", reply.Outcome, reply.Message)
	}
	if reply.ConversationID == "" {
		t.Fatalf("expected a conversation id")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", res.StatusCode)
	}
	var tasks []TaskResponse
	_ = json.Unmarshal(data, &tasks)
	if len(tasks) != 1 || tasks[0].Title != "buy milk" {
		t.Fatalf("expected task created from chat, got %+v", tasks)
	}

	// history holds the user turn and exactly one assistant turn
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conversations/"+reply.ConversationID+"/messages", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("messages status %d", res.StatusCode)
	}
	var msgs []MessageResponse
	_ = json.Unmarshal(data, &msgs)
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("expected user+assistant turns, got %d", len(msgs))
	}
}

func TestChatDeleteRequiresConfirmation(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	token := registerUser(t, srv, "careful@example.com")

	_, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "pay rent"}, token)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/chat/message", map[string]any{
		"message": "delete the pay rent task",
	}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d: %s", res.StatusCode, string(data))
	}
	var reply ChatReplyResponse
	_ = json.Unmarshal(data, &reply)
	if reply.Outcome != chat.OutcomeAwaitingConfirmation || reply.ConfirmationToken == "" {
		t.Fatalf("expected confirmation request, got %s", reply.Outcome)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/chat/confirm", map[string]any{
		"token":   reply.ConfirmationToken,
		"approve": true,
	}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm status %d: %s", res.StatusCode, string(data))
	}
	var confirmed ChatReplyResponse
	_ = json.Unmarshal(data, &confirmed)
	if confirmed.Outcome != chat.OutcomeExecuted {
		t.Fatalf("expected executed after approval, got %s (%s)", confirmed.Outcome, confirmed.Message)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, token)
	var tasks []TaskResponse
	_ = json.Unmarshal(data, &tasks)
	if res.StatusCode != http.StatusOK || len(tasks) != 0 {
		t.Fatalf("expected task deleted, got %d tasks", len(tasks))
	}

	// token is consumed
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/chat/confirm", map[string]any{
		"token":   reply.ConfirmationToken,
		"approve": true,
	}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm replay status %d: %s", res.StatusCode, string(data))
	}
	var replayed ChatReplyResponse
	_ = json.Unmarshal(data, &replayed)
	if replayed.Outcome != chat.OutcomeCancelled {
		t.Fatalf("expected cancelled on replay, got %s", replayed.Outcome)
	}
}

func TestChatMessageTooLongRejected(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	token := registerUser(t, srv, "longwinded@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/chat/message", map[string]any{
		"message": strings.Repeat("a", 2001),
	}, token)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}
