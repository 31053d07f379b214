package server

import (
	"taskline/internal/ai"
	"taskline/internal/chat"
	"taskline/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" maxLength:"255"`
	Description *string `json:"description,omitempty" maxLength:"4000"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty" maxLength:"255"`
	Description *string `json:"description,omitempty" maxLength:"4000"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message" maxLength:"2000"`
}

type ConfirmRequest struct {
	Token   string `json:"token"`
	Approve bool   `json:"approve"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	IsCompleted bool    `json:"is_completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type ConversationResponse struct {
	ID        string  `json:"id"`
	Title     *string `json:"title,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type MessageResponse struct {
	ID               string   `json:"id"`
	Role             string   `json:"role" enum:"user,assistant"`
	Content          string   `json:"content"`
	GeneratedCommand *string  `json:"generated_command,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	Timestamp        string   `json:"timestamp" format:"date-time"`
}

// ChatReplyResponse is the response of both the message and confirm
// endpoints.
type ChatReplyResponse struct {
	ConversationID    string         `json:"conversation_id"`
	Message           string         `json:"message"`
	Outcome           string         `json:"outcome" enum:"executed,failed,awaiting_confirmation,fallback,cancelled"`
	Confidence        float64        `json:"confidence"`
	IsFallback        bool           `json:"is_fallback"`
	NeedsConfirmation bool           `json:"needs_confirmation"`
	ConfirmationToken string         `json:"confirmation_token,omitempty"`
	SuggestedCommand  string         `json:"suggested_command,omitempty"`
	Tasks             []TaskResponse `json:"tasks,omitempty"`
	Failure           *ai.Failure    `json:"failure,omitempty"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	res := []TaskResponse{}
	for _, t := range tasks {
		res = append(res, taskResponse(t))
	}
	return res
}

func conversationResponse(c domain.Conversation) ConversationResponse {
	return ConversationResponse{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func messageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:               m.ID,
		Role:             m.Role,
		Content:          m.Content,
		GeneratedCommand: m.GeneratedCommand,
		ConfidenceScore:  m.ConfidenceScore,
		Timestamp:        m.Timestamp,
	}
}

func replyResponse(r chat.Reply) ChatReplyResponse {
	return ChatReplyResponse{
		ConversationID:    r.ConversationID,
		Message:           r.Message,
		Outcome:           r.Outcome,
		Confidence:        r.Confidence,
		IsFallback:        r.IsFallback,
		NeedsConfirmation: r.NeedsConfirmation,
		ConfirmationToken: r.ConfirmationToken,
		SuggestedCommand:  r.SuggestedCommand,
		Tasks:             mapTasks(r.Tasks),
		Failure:           r.Failure,
	}
}
