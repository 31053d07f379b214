// Package tasklinesdk is a minimal Go client for the Taskline HTTP API.
package tasklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	IsCompleted bool    `json:"is_completed"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// User represents the API user model.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// AuthResult is the register/login response.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Conversation represents a chat thread.
type Conversation struct {
	ID        string  `json:"id"`
	Title     *string `json:"title,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Message is one turn of a conversation.
type Message struct {
	ID               string   `json:"id"`
	Role             string   `json:"role"`
	Content          string   `json:"content"`
	GeneratedCommand *string  `json:"generated_command,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	Timestamp        string   `json:"timestamp"`
}

// ChatReply is the response of the message and confirm endpoints.
type ChatReply struct {
	ConversationID    string  `json:"conversation_id"`
	Message           string  `json:"message"`
	Outcome           string  `json:"outcome"`
	Confidence        float64 `json:"confidence"`
	IsFallback        bool    `json:"is_fallback"`
	NeedsConfirmation bool    `json:"needs_confirmation"`
	ConfirmationToken string  `json:"confirmation_token,omitempty"`
	SuggestedCommand  string  `json:"suggested_command,omitempty"`
	Tasks             []Task  `json:"tasks,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates an account and stores the returned token on the
// client.
func (c *Client) Register(ctx context.Context, email, password string) (AuthResult, error) {
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "auth/register", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var resp AuthResult
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title string, description *string) (Task, error) {
	body := map[string]any{"title": title}
	if description != nil {
		body["description"] = *description
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// ListTasks lists tasks, optionally filtered by status (all, pending,
// completed).
func (c *Client) ListTasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := "tasks"
	if status != "" {
		endpoint = fmt.Sprintf("tasks?status=%s", url.QueryEscape(status))
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CompleteTask marks a task as done.
func (c *Client) CompleteTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/complete", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%s", url.PathEscape(id)), nil, nil)
}

// SendMessage sends a chat message. An empty conversationID starts a
// new conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, message string) (ChatReply, error) {
	body := map[string]any{"message": message}
	if conversationID != "" {
		body["conversation_id"] = conversationID
	}
	var resp ChatReply
	err := c.do(ctx, http.MethodPost, "chat/message", body, &resp)
	return resp, err
}

// Confirm approves or declines a pending action by token.
func (c *Client) Confirm(ctx context.Context, token string, approve bool) (ChatReply, error) {
	var resp ChatReply
	err := c.do(ctx, http.MethodPost, "chat/confirm", map[string]any{"token": token, "approve": approve}, &resp)
	return resp, err
}

// Conversations lists the authenticated user's conversations.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var resp []Conversation
	err := c.do(ctx, http.MethodGet, "conversations", nil, &resp)
	return resp, err
}

// Messages returns the transcript of a conversation.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	var resp []Message
	endpoint := fmt.Sprintf("conversations/%s/messages", url.PathEscape(conversationID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
