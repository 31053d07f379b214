package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/migrate"
)

func newExecutorEnv(t *testing.T) (Executor, domain.User) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	u, err := eng.CreateUser(context.Background(), "exec@example.com", "secret-pass")
	require.NoError(t, err)
	return Executor{Engine: eng}, u
}

func TestExecuteAdd(t *testing.T) {
	x, u := newExecutorEnv(t)
	res := x.Execute(context.Background(), u.ID, InterpretedCommand{
		Action: ActionAdd,
		Params: Params{Title: "write report", Description: "for Friday"},
	})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NotEmpty(t, res.AffectedTaskID)
	assert.Contains(t, res.Summary, "write report")
}

func TestExecuteListWithFilter(t *testing.T) {
	x, u := newExecutorEnv(t)
	ctx := context.Background()
	x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionAdd, Params: Params{Title: "one"}})
	added := x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionAdd, Params: Params{Title: "two"}})
	x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionComplete, Params: Params{TaskID: added.AffectedTaskID}})

	res := x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionList, Params: Params{StatusFilter: "pending"}})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "one", res.Tasks[0].Title)
}

func TestExecuteCompleteByTitleMatch(t *testing.T) {
	x, u := newExecutorEnv(t)
	ctx := context.Background()
	x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionAdd, Params: Params{Title: "call dentist"}})

	res := x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionComplete, Params: Params{TitleMatch: "dentist"}})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Contains(t, res.Summary, "call dentist")
}

func TestExecuteAmbiguousMatch(t *testing.T) {
	x, u := newExecutorEnv(t)
	ctx := context.Background()
	x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionAdd, Params: Params{Title: "buy milk"}})
	x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionAdd, Params: Params{Title: "buy bread"}})

	res := x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionDelete, Params: Params{TitleMatch: "buy"}})
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailAmbiguous, res.Failure.Kind)
	assert.Len(t, res.Failure.Candidates, 2)

	// nothing was deleted
	list := x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionList})
	assert.Len(t, list.Tasks, 2)
}

func TestExecuteNoMatch(t *testing.T) {
	x, u := newExecutorEnv(t)
	res := x.Execute(context.Background(), u.ID, InterpretedCommand{
		Action: ActionDelete,
		Params: Params{TitleMatch: "nonexistent"},
	})
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailNotFound, res.Failure.Kind)
}

func TestExecuteUnknownTaskID(t *testing.T) {
	x, u := newExecutorEnv(t)
	res := x.Execute(context.Background(), u.ID, InterpretedCommand{
		Action: ActionComplete,
		Params: Params{TaskID: "does-not-exist"},
	})
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, FailNotFound, res.Failure.Kind)
}

func TestExecuteSlotGate(t *testing.T) {
	x, u := newExecutorEnv(t)
	res := x.Execute(context.Background(), u.ID, InterpretedCommand{Action: ActionAdd})
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, FailValidation, res.Failure.Kind)

	res = x.Execute(context.Background(), u.ID, InterpretedCommand{Action: ActionUnknown})
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestExecuteUpdateField(t *testing.T) {
	x, u := newExecutorEnv(t)
	ctx := context.Background()
	added := x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionAdd, Params: Params{Title: "draft"}})

	res := x.Execute(ctx, u.ID, InterpretedCommand{
		Action: ActionUpdate,
		Params: Params{TaskID: added.AffectedTaskID, Field: FieldTitle, NewValue: "final"},
	})
	require.Equal(t, OutcomeSuccess, res.Outcome)

	list := x.Execute(ctx, u.ID, InterpretedCommand{Action: ActionList})
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "final", list.Tasks[0].Title)
}
