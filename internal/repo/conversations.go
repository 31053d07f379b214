package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertConversation(ctx context.Context, c domain.Conversation) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO conversations(id,user_id,title,created_at,updated_at) VALUES (?,?,?,?,?)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetConversation(ctx context.Context, userID, id string) (domain.Conversation, error) {
	var c domain.Conversation
	var title sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,user_id,title,created_at,updated_at FROM conversations WHERE id=? AND user_id=?`, id, userID).
		Scan(&c.ID, &c.UserID, &title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if title.Valid {
		c.Title = &title.String
	}
	return c, nil
}

func (r Repo) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,user_id,title,created_at,updated_at FROM conversations WHERE user_id=? ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var title sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			c.Title = &title.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// SetConversationTitle fills the title only when none is set yet, so
// auto-titling stays idempotent. Returns the rows affected.
func (r Repo) SetConversationTitle(ctx context.Context, id, title, updatedAt string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE conversations SET title=?, updated_at=? WHERE id=? AND title IS NULL`, title, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) TouchConversation(ctx context.Context, id, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE conversations SET updated_at=? WHERE id=?`, updatedAt, id)
	return err
}

func (r Repo) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO messages(id,conversation_id,role,content,generated_command,confidence_score,timestamp) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.GeneratedCommand, m.ConfidenceScore, m.Timestamp)
	return err
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		var cmd sql.NullString
		var conf sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &cmd, &conf, &m.Timestamp); err != nil {
			return nil, err
		}
		if cmd.Valid {
			m.GeneratedCommand = &cmd.String
		}
		if conf.Valid {
			m.ConfidenceScore = &conf.Float64
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,conversation_id,role,content,generated_command,confidence_score,timestamp FROM messages
WHERE conversation_id=? ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// RecentMessages returns the newest messages in chronological order.
func (r Repo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,conversation_id,role,content,generated_command,confidence_score,timestamp FROM (
SELECT * FROM messages WHERE conversation_id=? ORDER BY timestamp DESC, id DESC LIMIT ?
) ORDER BY timestamp ASC, id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r Repo) FirstUserMessage(ctx context.Context, conversationID string) (domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,conversation_id,role,content,generated_command,confidence_score,timestamp FROM messages
WHERE conversation_id=? AND role=? ORDER BY timestamp ASC, id ASC LIMIT 1`, conversationID, domain.RoleUser)
	if err != nil {
		return domain.Message{}, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return domain.Message{}, err
	}
	if len(msgs) == 0 {
		return domain.Message{}, ErrNotFound
	}
	return msgs[0], nil
}
