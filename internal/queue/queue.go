// Package queue implements the ingestion task queue backed by the store's
// generic document store plus its live_subscribe primitive.
package queue

import (
	"context"

	"github.com/google/uuid"

	"noema/internal/apperr"
	"noema/internal/model"
	"noema/internal/store"
)

// Queue wraps a *store.Store with the typed enqueue/listen surface the ingestion
// worker loop consumes.
type Queue struct {
	store       *store.Store
	maxAttempts int
}

func New(s *store.Store, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Queue{store: s, maxAttempts: maxAttempts}
}

// Enqueue creates a new IngestionTask in the Created state.
func (q *Queue) Enqueue(ctx context.Context, payload model.IngestionPayload, userID string) (string, error) {
	task := model.IngestionTask{
		ID:      uuid.NewString(),
		Payload: payload,
		Status:  model.TaskStatus{Kind: model.TaskCreated},
		UserID:  userID,
	}
	if err := q.store.CreateTask(ctx, task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// UpdateStatus replaces task.id's status field, preserving the rest of the
// task unchanged.
func (q *Queue) UpdateStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	task, ok, err := q.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.NotFound, "task not found: "+taskID)
	}
	task.Status = status
	return q.store.ReplaceTask(ctx, task)
}

// UnfinishedTasks returns every Created or InProgress{attempts<max} task
// ordered by created_at ascending, for crash-recovery drain on startup.
func (q *Queue) UnfinishedTasks(ctx context.Context) ([]model.IngestionTask, error) {
	return q.store.UnfinishedTasks(ctx, q.maxAttempts)
}

// TaskEvent is one emission from Listen: either a brand-new task or a task
// that just transitioned to a retryable Error state.
type TaskEvent struct {
	TaskID string
}

// Listen subscribes to the ingestion_tasks table and filters the raw
// Created/Updated/Deleted event stream down to what a worker should react
// to: new tasks, and updates that land in Error with attempts still under
// the retry cap. Every other transition (InProgress, Completed, Cancelled,
// Error-at-max-attempts) is ignored so a worker never re-processes its own
// status writes.
func (q *Queue) Listen(ctx context.Context) (<-chan TaskEvent, error) {
	raw, err := q.store.Subscribe(ctx, model.IngestionTask{}.TableName())
	if err != nil {
		return nil, err
	}
	out := make(chan TaskEvent)
	go func() {
		defer close(out)
		for ev := range raw {
			switch ev.Kind {
			case store.EventCreated:
				q.emit(ctx, out, ev.ID)
			case store.EventUpdated:
				task, ok, err := q.store.GetTask(ctx, ev.ID)
				if err != nil || !ok {
					continue
				}
				if task.Status.Kind == model.TaskError && task.Status.Attempts < q.maxAttempts {
					q.emit(ctx, out, ev.ID)
				}
			}
		}
	}()
	return out, nil
}

func (q *Queue) emit(ctx context.Context, out chan<- TaskEvent, taskID string) {
	select {
	case out <- TaskEvent{TaskID: taskID}:
	case <-ctx.Done():
	}
}
