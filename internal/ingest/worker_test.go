package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noema/internal/config"
	"noema/internal/model"
	"noema/internal/queue"
)

func TestWorker_DrainProcessesUnfinishedTasks(t *testing.T) {
	ctx := context.Background()
	deps, s := newTestDeps(t, emptyEnrichmentJSON(t))
	q := queue.New(s, 3)
	w := NewWorker(deps, q)

	taskID, err := q.Enqueue(ctx, model.IngestionPayload{Text: "some content about bees and honey"}, "user-1")
	require.NoError(t, err)

	require.NoError(t, w.Drain(ctx))

	got, ok, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TaskCompleted, got.Status.Kind)
}

func TestWorker_DrainSkipsCompletedAndExhaustedTasks(t *testing.T) {
	ctx := context.Background()
	deps, s := newTestDeps(t, emptyEnrichmentJSON(t))
	q := queue.New(s, 3)
	w := NewWorker(deps, q)

	done := model.IngestionTask{ID: "done-1", Payload: model.IngestionPayload{Text: "x"}, Status: model.TaskStatus{Kind: model.TaskCompleted}, UserID: "user-1"}
	require.NoError(t, s.CreateTask(ctx, done))
	exhausted := model.IngestionTask{ID: "exhausted-1", Payload: model.IngestionPayload{Text: "x"}, Status: model.TaskStatus{Kind: model.TaskError, Attempts: 3}, UserID: "user-1"}
	require.NoError(t, s.CreateTask(ctx, exhausted))

	require.NoError(t, w.Drain(ctx))

	gotDone, _, _ := s.GetTask(ctx, "done-1")
	assert.Equal(t, model.TaskCompleted, gotDone.Status.Kind)
	gotExhausted, _, _ := s.GetTask(ctx, "exhausted-1")
	assert.Equal(t, 3, gotExhausted.Status.Attempts)
}

func TestRetryBackoff_GrowsExponentiallyThenCaps(t *testing.T) {
	tuning := config.IngestionTuning{RetryBaseDelaySecs: 30, RetryMaxDelaySecs: 900, RetryExponentCap: 5}

	assert.Equal(t, 60*time.Second, retryBackoff(tuning, 1))
	assert.Equal(t, 120*time.Second, retryBackoff(tuning, 2))
	assert.Equal(t, 900*time.Second, retryBackoff(tuning, 10)) // exponent capped at 5 (960s), then clamped to max
	assert.Equal(t, 900*time.Second, retryBackoff(tuning, 100))
}

func TestStageDeadline_DefaultsWhenUnset(t *testing.T) {
	assert.Equal(t, 10*time.Minute, stageDeadline(config.IngestionTuning{}))
	assert.Equal(t, 5*time.Minute, stageDeadline(config.IngestionTuning{StageDeadlineSecs: 300}))
}
