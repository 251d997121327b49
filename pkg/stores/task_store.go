package stores

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-payments/pkg/a2a"
)

var ErrNotFound = errors.New("task not found")

/*
Archive is long-term storage for finished tasks. The in-memory store falls
back to it for tasks it no longer holds.
*/
type Archive interface {
	Put(ctx context.Context, task *a2a.Task) error
	Get(ctx context.Context, taskID string) (*a2a.Task, error)
}

/*
TaskStore is the in-memory task registry. Tasks go in and come out as
copies, so callers never share state with the store.
*/
type TaskStore struct {
	mu      sync.RWMutex
	tasks   map[string]*a2a.Task
	archive Archive
}

type TaskStoreOption func(*TaskStore)

func WithArchive(archive Archive) TaskStoreOption {
	return func(store *TaskStore) {
		store.archive = archive
	}
}

func NewTaskStore(options ...TaskStoreOption) *TaskStore {
	store := &TaskStore{
		tasks: make(map[string]*a2a.Task),
	}

	for _, option := range options {
		option(store)
	}

	return store
}

func (store *TaskStore) Put(task *a2a.Task) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.tasks[task.ID] = task.Clone()
}

/*
Get returns a copy of the task with at most historyLength messages of
history (all of it when historyLength is not positive).
*/
func (store *TaskStore) Get(ctx context.Context, taskID string, historyLength int) (*a2a.Task, error) {
	store.mu.RLock()
	task, ok := store.tasks[taskID]

	if ok {
		task = task.Clone()
	}

	store.mu.RUnlock()

	if !ok {
		var err error

		if task, err = store.fromArchive(ctx, taskID); err != nil {
			return nil, err
		}
	}

	task.TrimHistory(historyLength)

	return task, nil
}

/*
AppendMessage adds msg to the history of a stored task.
*/
func (store *TaskStore) AppendMessage(taskID string, msg a2a.Message) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	task, ok := store.tasks[taskID]

	if !ok {
		return ErrNotFound
	}

	task.History = append(task.History, msg)

	return nil
}

/*
ApplyStatus moves a stored task to the status carried by event. The message
of a final event is also appended to the history.
*/
func (store *TaskStore) ApplyStatus(event *a2a.TaskStatusUpdateEvent) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	task, ok := store.tasks[event.TaskID]

	if !ok {
		return ErrNotFound
	}

	status := event.Status

	if status.Message != nil {
		msg := *status.Message
		status.Message = &msg

		if event.Final {
			task.History = append(task.History, msg)
		}
	}

	task.Status = status

	return nil
}

/*
Archive copies the current snapshot of a task to the archive, if one is
configured.
*/
func (store *TaskStore) Archive(ctx context.Context, taskID string) error {
	if store.archive == nil {
		return nil
	}

	store.mu.RLock()
	task, ok := store.tasks[taskID]

	if ok {
		task = task.Clone()
	}

	store.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}

	if err := store.archive.Put(ctx, task); err != nil {
		return fmt.Errorf("failed to archive task %s: %w", taskID, err)
	}

	return nil
}

func (store *TaskStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return len(store.tasks)
}

func (store *TaskStore) fromArchive(ctx context.Context, taskID string) (*a2a.Task, error) {
	if store.archive == nil {
		return nil, ErrNotFound
	}

	task, err := store.archive.Get(ctx, taskID)

	if err != nil {
		log.Debug("task not found in archive", "taskId", taskID, "error", err)
		return nil, ErrNotFound
	}

	store.mu.Lock()

	if _, ok := store.tasks[taskID]; !ok {
		store.tasks[taskID] = task.Clone()
	}

	store.mu.Unlock()

	return task, nil
}
