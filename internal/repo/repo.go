package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Task status filters for ListTasks.
const (
	FilterAll       = "all"
	FilterPending   = "pending"
	FilterCompleted = "completed"
)

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,password_hash,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

func (r Repo) DeleteUser(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,user_id,title,description,is_completed,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, boolToInt(t.IsCompleted), t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	var desc sql.NullString
	var completed int
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &desc, &completed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	t.IsCompleted = completed != 0
	return t, nil
}

// GetTask is scoped by owner: another user's task reads as not found.
func (r Repo) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx,
		`SELECT id,user_id,title,description,is_completed,created_at,updated_at FROM tasks WHERE id=? AND user_id=?`, taskID, userID))
}

func (r Repo) ListTasks(ctx context.Context, userID, statusFilter string) ([]domain.Task, error) {
	clauses := []string{"user_id=?"}
	args := []any{userID}
	switch statusFilter {
	case FilterPending:
		clauses = append(clauses, "is_completed=0")
	case FilterCompleted:
		clauses = append(clauses, "is_completed=1")
	case "", FilterAll:
	default:
		return nil, fmt.Errorf("unknown status filter %q", statusFilter)
	}
	query := `SELECT id,user_id,title,description,is_completed,created_at,updated_at FROM tasks WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var desc sql.NullString
		var completed int
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &desc, &completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			t.Description = &desc.String
		}
		t.IsCompleted = completed != 0
		res = append(res, t)
	}
	return res, rows.Err()
}

// FindTasksByTitle returns the user's tasks whose title contains the
// given fragment, case-insensitively.
func (r Repo) FindTasksByTitle(ctx context.Context, userID, fragment string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,user_id,title,description,is_completed,created_at,updated_at FROM tasks
WHERE user_id=? AND LOWER(title) LIKE '%' || LOWER(?) || '%' ORDER BY created_at ASC, id ASC`, userID, fragment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var desc sql.NullString
		var completed int
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &desc, &completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			t.Description = &desc.String
		}
		t.IsCompleted = completed != 0
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET title=?, description=?, is_completed=?, updated_at=? WHERE id=? AND user_id=?`,
		t.Title, t.Description, boolToInt(t.IsCompleted), t.UpdatedAt, t.ID, t.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, userID, taskID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND user_id=?`, taskID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasks(ctx context.Context, userID string) (pending, completed int, err error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN is_completed=0 THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN is_completed=1 THEN 1 ELSE 0 END),0) FROM tasks WHERE user_id=?`, userID)
	err = row.Scan(&pending, &completed)
	return
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
