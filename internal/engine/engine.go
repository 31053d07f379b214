package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

const (
	maxTitleLen       = 255
	maxDescriptionLen = 4000
)

// ErrValidation marks input errors that never reach the store.
var ErrValidation = errors.New("validation")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > maxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, maxTitleLen)
	}
	return nil
}

func validateDescription(desc *string) error {
	if desc != nil && len(*desc) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrValidation, maxDescriptionLen)
	}
	return nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	UserID      string
	Title       string
	Description *string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.UserID == "" {
		return domain.Task{}, fmt.Errorf("%w: user is required", ErrValidation)
	}
	if err := validateTitle(opts.Title); err != nil {
		return domain.Task{}, err
	}
	if err := validateDescription(opts.Description); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.New().String(),
		UserID:      opts.UserID,
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		IsCompleted: false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.UserID, "task", t.ID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, userID, taskID)
}

func (e Engine) ListTasks(ctx context.Context, userID, statusFilter string) ([]domain.Task, error) {
	if statusFilter != "" && statusFilter != repo.FilterAll &&
		statusFilter != repo.FilterPending && statusFilter != repo.FilterCompleted {
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrValidation, statusFilter)
	}
	return e.Repo.ListTasks(ctx, userID, statusFilter)
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are
// left untouched.
type TaskUpdateOptions struct {
	UserID      string
	TaskID      string
	Title       *string
	Description *string
	IsCompleted *bool
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.UserID, opts.TaskID)
	if err != nil {
		return t, err
	}
	if opts.Title != nil {
		if err := validateTitle(*opts.Title); err != nil {
			return t, err
		}
		t.Title = strings.TrimSpace(*opts.Title)
	}
	if opts.Description != nil {
		if err := validateDescription(opts.Description); err != nil {
			return t, err
		}
		t.Description = opts.Description
	}
	if opts.IsCompleted != nil {
		t.IsCompleted = *opts.IsCompleted
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.UserID, "task", t.ID, events.EventPayload{"title": t.Title}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// CompleteTask marks a task done. Completing an already-completed
// task is a no-op, not an error.
func (e Engine) CompleteTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, userID, taskID)
	if err != nil {
		return t, err
	}
	if t.IsCompleted {
		return t, nil
	}
	t.IsCompleted = true
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", t.UserID, "task", t.ID, events.EventPayload{"title": t.Title}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, userID, taskID)
	if err != nil {
		return t, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, userID, taskID); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.UserID, "task", t.ID, events.EventPayload{"title": t.Title}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// FindTasksByTitle resolves a title fragment against the user's own
// tasks only.
func (e Engine) FindTasksByTitle(ctx context.Context, userID, fragment string) ([]domain.Task, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, fmt.Errorf("%w: title fragment is required", ErrValidation)
	}
	return e.Repo.FindTasksByTitle(ctx, userID, fragment)
}
