package engine

import (
	"context"
	"testing"

	"processhub/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		from    workflow.StepTaskStatus
		trigger string
		want    workflow.StepTaskStatus
	}{
		{workflow.StepTaskPending, triggerStart, workflow.StepTaskInProgress},
		{workflow.StepTaskPending, triggerComplete, workflow.StepTaskCompleted},
		{workflow.StepTaskInProgress, triggerComplete, workflow.StepTaskCompleted},
		{workflow.StepTaskInProgress, triggerCancel, workflow.StepTaskCancelled},
		{workflow.StepTaskPending, triggerSkip, workflow.StepTaskSkipped},
	}
	for _, tc := range cases {
		got, err := nextStepTaskStatus(ctx, tc.from, tc.trigger)
		require.NoError(t, err, "%s --%s-->", tc.from, tc.trigger)
		assert.Equal(t, tc.want, got)
	}

	for _, terminal := range []workflow.StepTaskStatus{workflow.StepTaskCompleted, workflow.StepTaskSkipped, workflow.StepTaskCancelled} {
		_, err := nextStepTaskStatus(ctx, terminal, triggerComplete)
		assert.ErrorIs(t, err, workflow.ErrStepTaskStateConflict)
	}
	_, err := nextStepTaskStatus(ctx, workflow.StepTaskInProgress, triggerStart)
	assert.ErrorIs(t, err, workflow.ErrStepTaskStateConflict)
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()

	got, err := nextTaskStatus(ctx, workflow.TaskStatusRunning, triggerComplete)
	require.NoError(t, err)
	assert.Equal(t, workflow.TaskStatusCompleted, got)

	got, err = nextTaskStatus(ctx, workflow.TaskStatusRunning, triggerCancel)
	require.NoError(t, err)
	assert.Equal(t, workflow.TaskStatusCancelled, got)

	_, err = nextTaskStatus(ctx, workflow.TaskStatusCompleted, triggerCancel)
	assert.ErrorIs(t, err, workflow.ErrTaskStateTransitionDenied)
}
