package ai

import (
	"context"
	"errors"
	"fmt"

	"taskline/internal/engine"
	"taskline/internal/repo"
)

// Executor dispatches a validated command against the task engine.
// Every path returns an ExecutionResult; errors from the store are
// folded into the failure taxonomy instead of escaping.
type Executor struct {
	Engine engine.Engine
}

func (x Executor) Execute(ctx context.Context, userID string, cmd InterpretedCommand) ExecutionResult {
	if err := cmd.ValidateSlots(); err != nil {
		return failedResult(FailValidation, err.Error())
	}

	switch cmd.Action {
	case ActionAdd:
		return x.add(ctx, userID, cmd)
	case ActionList:
		return x.list(ctx, userID, cmd)
	case ActionComplete:
		return x.complete(ctx, userID, cmd)
	case ActionUpdate:
		return x.update(ctx, userID, cmd)
	case ActionDelete:
		return x.delete(ctx, userID, cmd)
	default:
		return failedResult(FailValidation, "nothing to execute")
	}
}

func (x Executor) add(ctx context.Context, userID string, cmd InterpretedCommand) ExecutionResult {
	opts := engine.TaskCreateOptions{UserID: userID, Title: cmd.Params.Title}
	if cmd.Params.Description != "" {
		d := cmd.Params.Description
		opts.Description = &d
	}
	t, err := x.Engine.CreateTask(ctx, opts)
	if err != nil {
		return storeFailure(err)
	}
	return ExecutionResult{
		Outcome:        OutcomeSuccess,
		Summary:        fmt.Sprintf("Added task %q.", t.Title),
		AffectedTaskID: t.ID,
	}
}

func (x Executor) list(ctx context.Context, userID string, cmd InterpretedCommand) ExecutionResult {
	filter := cmd.Params.StatusFilter
	if filter == "" {
		filter = repo.FilterAll
	}
	tasks, err := x.Engine.ListTasks(ctx, userID, filter)
	if err != nil {
		return storeFailure(err)
	}
	summary := fmt.Sprintf("You have %d task(s).", len(tasks))
	if len(tasks) == 0 {
		summary = "You have no tasks."
	}
	return ExecutionResult{Outcome: OutcomeSuccess, Summary: summary, Tasks: tasks}
}

func (x Executor) complete(ctx context.Context, userID string, cmd InterpretedCommand) ExecutionResult {
	taskID, res := x.resolveTarget(ctx, userID, cmd)
	if res != nil {
		return *res
	}
	t, err := x.Engine.CompleteTask(ctx, userID, taskID)
	if err != nil {
		return storeFailure(err)
	}
	return ExecutionResult{
		Outcome:        OutcomeSuccess,
		Summary:        fmt.Sprintf("Marked %q as done.", t.Title),
		AffectedTaskID: t.ID,
	}
}

func (x Executor) update(ctx context.Context, userID string, cmd InterpretedCommand) ExecutionResult {
	opts := engine.TaskUpdateOptions{UserID: userID, TaskID: cmd.Params.TaskID}
	v := cmd.Params.NewValue
	switch cmd.Params.Field {
	case FieldTitle:
		opts.Title = &v
	case FieldDescription:
		opts.Description = &v
	}
	t, err := x.Engine.UpdateTask(ctx, opts)
	if err != nil {
		return storeFailure(err)
	}
	return ExecutionResult{
		Outcome:        OutcomeSuccess,
		Summary:        fmt.Sprintf("Updated %s of %q.", cmd.Params.Field, t.Title),
		AffectedTaskID: t.ID,
	}
}

func (x Executor) delete(ctx context.Context, userID string, cmd InterpretedCommand) ExecutionResult {
	taskID, res := x.resolveTarget(ctx, userID, cmd)
	if res != nil {
		return *res
	}
	t, err := x.Engine.DeleteTask(ctx, userID, taskID)
	if err != nil {
		return storeFailure(err)
	}
	return ExecutionResult{
		Outcome:        OutcomeSuccess,
		Summary:        fmt.Sprintf("Deleted %q.", t.Title),
		AffectedTaskID: t.ID,
	}
}

// resolveTarget turns a task id or a title fragment into exactly one
// task id. Zero matches fail as NOT_FOUND, more than one as
// AMBIGUOUS_MATCH carrying the candidates.
func (x Executor) resolveTarget(ctx context.Context, userID string, cmd InterpretedCommand) (string, *ExecutionResult) {
	if cmd.Params.TaskID != "" {
		return cmd.Params.TaskID, nil
	}
	matches, err := x.Engine.FindTasksByTitle(ctx, userID, cmd.Params.TitleMatch)
	if err != nil {
		r := storeFailure(err)
		return "", &r
	}
	switch len(matches) {
	case 0:
		r := failedResult(FailNotFound, fmt.Sprintf("I couldn't find a task matching %q.", cmd.Params.TitleMatch))
		return "", &r
	case 1:
		return matches[0].ID, nil
	default:
		r := failedResult(FailAmbiguous, fmt.Sprintf("%d tasks match %q; please pick one by id.", len(matches), cmd.Params.TitleMatch))
		for _, m := range matches {
			r.Failure.Candidates = append(r.Failure.Candidates, Candidate{TaskID: m.ID, Title: m.Title})
		}
		return "", &r
	}
}

func storeFailure(err error) ExecutionResult {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return failedResult(FailNotFound, "I couldn't find that task.")
	case errors.Is(err, engine.ErrValidation):
		return failedResult(FailValidation, err.Error())
	default:
		return failedResult(FailPersistence, "Something went wrong saving your change. Please try again.")
	}
}
