package domain

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	IsCompleted bool    `json:"is_completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Conversation struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Title     *string `json:"title,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// Message roles. Every user message is answered by exactly one
// assistant message, failures included.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID               string   `json:"id"`
	ConversationID   string   `json:"conversation_id"`
	Role             string   `json:"role" enum:"user,assistant"`
	Content          string   `json:"content"`
	GeneratedCommand *string  `json:"generated_command,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	Timestamp        string   `json:"timestamp" format:"date-time"`
}

// PendingCommand is a proposed command awaiting an explicit
// approve/decline, correlated by an opaque token.
type PendingCommand struct {
	Token          string `json:"token"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	CommandJSON    string `json:"command_json"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	ExpiresAt      string `json:"expires_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
