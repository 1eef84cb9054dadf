package ingest

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"noema/internal/config"
	"noema/internal/model"
	"noema/internal/observability"
	"noema/internal/queue"
)

// Worker is the queue-consuming half of ingestion: it drains unfinished tasks on
// startup, then reacts to the queue's live stream for the remainder of the
// process lifetime. Draining first means a crash mid-task is recovered
// before any new work is accepted.
type Worker struct {
	Deps        Deps
	Queue       *queue.Queue
	Concurrency int
}

// NewWorker builds a Worker from deps and q, sizing concurrency from
// deps.Tuning.WorkerConcurrency (default 4).
func NewWorker(deps Deps, q *queue.Queue) *Worker {
	n := deps.Tuning.WorkerConcurrency
	if n <= 0 {
		n = 4
	}
	return &Worker{Deps: deps, Queue: q, Concurrency: n}
}

// Run drains unfinished tasks, then blocks consuming the live task stream
// until ctx is cancelled. It returns nil on a clean ctx cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Drain(ctx); err != nil {
		return err
	}

	events, err := w.Queue.Listen(ctx)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(int64(w.concurrency()))
	var g errgroup.Group
	for ev := range events {
		taskID := ev.TaskID
		if err := sem.Acquire(ctx, 1); err != nil {
			break // ctx cancelled
		}
		g.Go(func() error {
			defer sem.Release(1)
			w.process(ctx, taskID)
			return nil
		})
	}
	return g.Wait()
}

// Drain processes every task the store reports unfinished —
// Created or InProgress{attempts<max}, oldest first — before the worker
// starts listening for new work. A task left InProgress by a process that
// crashed mid-run is re-claimed exactly like any other unfinished task: Run
// bumps its attempts counter and proceeds.
func (w *Worker) Drain(ctx context.Context) error {
	tasks, err := w.Queue.UnfinishedTasks(ctx)
	if err != nil {
		return err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	if len(tasks) > 0 {
		observability.LoggerWithTrace(ctx).Info().Int("count", len(tasks)).Msg("draining unfinished ingestion tasks")
	}

	sem := semaphore.NewWeighted(int64(w.concurrency()))
	var g errgroup.Group
	for _, t := range tasks {
		taskID := t.ID
		if err := sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}
		g.Go(func() error {
			defer sem.Release(1)
			w.process(ctx, taskID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) concurrency() int {
	if w.Concurrency <= 0 {
		return 4
	}
	return w.Concurrency
}

// process runs one task, honoring the retry backoff delay when the task's
// current status is a retryable Error, and bounding the run with the
// configured stage deadline, applied here to the whole task run since Run
// does not itself expose per-stage deadlines. Extraction of large PDFs and
// enrichment over large contexts are slow, hence the generous default.
func (w *Worker) process(ctx context.Context, taskID string) {
	log := observability.LoggerWithTask(ctx, taskID)

	task, ok, err := w.Deps.Store.GetTask(ctx, taskID)
	if err != nil || !ok {
		return
	}

	if task.Status.Kind == model.TaskError && task.Status.Attempts > 0 {
		if wait := retryBackoff(w.Deps.Tuning, task.Status.Attempts); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, stageDeadline(w.Deps.Tuning))
	defer cancel()

	if err := Run(runCtx, w.Deps, taskID); err != nil {
		log.Error().Err(err).Int("attempts", task.Status.Attempts+1).Msg("ingestion task failed")
	}
}

// retryBackoff computes the delay before re-attempting a task:
// base_delay * 2^min(attempts, exponent_cap), capped at max_delay.
func retryBackoff(t config.IngestionTuning, attempts int) time.Duration {
	base := t.RetryBaseDelaySecs
	if base <= 0 {
		base = 30
	}
	maxDelay := t.RetryMaxDelaySecs
	if maxDelay <= 0 {
		maxDelay = 15 * 60
	}
	expCap := t.RetryExponentCap
	if expCap <= 0 {
		expCap = 5
	}
	exp := attempts
	if exp > expCap {
		exp = expCap
	}
	delaySecs := float64(base) * math.Pow(2, float64(exp))
	if delaySecs > float64(maxDelay) {
		delaySecs = float64(maxDelay)
	}
	return time.Duration(delaySecs) * time.Second
}

func stageDeadline(t config.IngestionTuning) time.Duration {
	secs := t.StageDeadlineSecs
	if secs <= 0 {
		secs = 10 * 60
	}
	return time.Duration(secs) * time.Second
}
