package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"wolfpack-sync/domain"
)

// ErrNoProject is returned by task operations when no project is active.
var ErrNoProject = errors.New("session: no active project")

// CreateTask applies the draft optimistically, then confirms it with the
// server and merges the response by id. The client assigns the task id so
// it stays stable across the optimistic, REST and delta paths. On failure
// the optimistic entry is rolled back.
func (s *Session) CreateTask(ctx context.Context, draft domain.Task) (domain.Task, error) {
	s.mu.Lock()
	if s.projectID == "" {
		s.mu.Unlock()
		return domain.Task{}, ErrNoProject
	}
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	draft.ProjectID = s.projectID
	if draft.Status == "" {
		draft.Status = domain.StatusBacklog
	}
	s.tasks = append(s.tasks, draft)
	s.mu.Unlock()
	s.notify()

	confirmed, err := s.api.CreateTask(ctx, draft)
	s.mu.Lock()
	if err != nil {
		tasks := s.tasks[:0]
		for _, t := range s.tasks {
			if t.ID != draft.ID {
				tasks = append(tasks, t)
			}
		}
		s.tasks = tasks
		s.mu.Unlock()
		s.notify()
		return domain.Task{}, err
	}
	s.replaceTaskLocked(confirmed)
	s.mu.Unlock()
	s.notify()
	return confirmed, nil
}

// UpdateTask applies the edit optimistically and merges the server copy by
// id when the call succeeds. Whichever write lands last wins; there is no
// field-level merge.
func (s *Session) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	s.replaceTaskLocked(t)
	s.mu.Unlock()
	s.notify()

	confirmed, err := s.api.UpdateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	s.mergeConfirmed(confirmed)
	return confirmed, nil
}

// MoveTask transitions a task to another board column.
func (s *Session) MoveTask(ctx context.Context, taskID, status string) (domain.Task, error) {
	if !domain.ValidStatus(status) {
		return domain.Task{}, errors.New("session: invalid task status")
	}
	s.mu.Lock()
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			s.tasks[i].Status = status
		}
	}
	s.mu.Unlock()
	s.notify()

	confirmed, err := s.api.UpdateTaskStatus(ctx, taskID, status)
	if err != nil {
		return domain.Task{}, err
	}
	s.mergeConfirmed(confirmed)
	return confirmed, nil
}

// CompleteTask marks a task done and installs the refreshed task, project
// and gameboard from the response, like a task_completed delta would.
func (s *Session) CompleteTask(ctx context.Context, taskID string) error {
	data, err := s.api.CompleteTask(ctx, taskID)
	if err != nil {
		return err
	}
	var hook func()
	s.mu.Lock()
	s.replaceTaskLocked(data.Task)
	if data.Project.ID != "" {
		s.project = copyProject(data.Project)
		s.replaceProjectLocked(data.Project)
	}
	s.board = data.Gameboard
	if h := s.hooks.OnTaskCompleted; h != nil {
		task := data.Task
		hook = func() { h(task) }
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.notify()
	return nil
}

// mergeConfirmed folds a REST response into state, re-checking the active
// project at apply time so a slow response cannot mutate state for a
// project the user has already left.
func (s *Session) mergeConfirmed(t domain.Task) {
	s.mu.Lock()
	if t.ProjectID != "" && t.ProjectID != s.projectID {
		s.mu.Unlock()
		return
	}
	s.replaceTaskLocked(t)
	s.mu.Unlock()
	s.notify()
}
