package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertPendingCommand(ctx context.Context, p domain.PendingCommand) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO pending_commands(token,conversation_id,user_id,command_json,created_at,expires_at) VALUES (?,?,?,?,?,?)`,
		p.Token, p.ConversationID, p.UserID, p.CommandJSON, p.CreatedAt, p.ExpiresAt)
	return err
}

func (r Repo) GetPendingCommand(ctx context.Context, userID, token string) (domain.PendingCommand, error) {
	var p domain.PendingCommand
	err := r.DB.QueryRowContext(ctx,
		`SELECT token,conversation_id,user_id,command_json,created_at,expires_at FROM pending_commands WHERE token=? AND user_id=?`,
		token, userID).
		Scan(&p.Token, &p.ConversationID, &p.UserID, &p.CommandJSON, &p.CreatedAt, &p.ExpiresAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// DeletePendingCommand removes a token; confirm and decline both
// consume it so a token resolves at most once.
func (r Repo) DeletePendingCommand(ctx context.Context, token string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM pending_commands WHERE token=?`, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) PurgeExpiredPendingCommands(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM pending_commands WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
