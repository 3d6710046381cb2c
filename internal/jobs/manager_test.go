package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateJob(t *testing.T) {
	m := NewManager()
	job := m.CreateJob("experiment", "bag sweep")

	_, err := uuid.Parse(job.ID)
	require.NoError(t, err)
	require.Equal(t, JobPending, job.GetStatus())

	got, ok := m.GetJob(job.ID)
	require.True(t, ok)
	require.Same(t, job, got)

	second := m.CreateJob("train", "fit")
	require.NotEqual(t, job.ID, second.ID)
	require.Len(t, m.ListJobs(), 2)
}

func TestJobLifecycle(t *testing.T) {
	m := NewManager()
	job := m.CreateJob("experiment", "bag sweep")
	ctx := m.Start(context.Background(), job)
	require.Equal(t, JobRunning, job.GetStatus())

	job.SetProgress(0.5)
	job.AddLog("bags=6 done")
	require.Equal(t, 0.5, job.GetProgress())
	require.Len(t, job.GetLogs(), 1)
	require.Contains(t, job.GetLogs()[0], "bags=6 done")

	job.SetStatus(JobCompleted)
	require.NotNil(t, job.EndTime)
	require.Error(t, ctx.Err())
}

func TestCancelJob(t *testing.T) {
	m := NewManager()
	job := m.CreateJob("experiment", "bag sweep")

	require.Error(t, m.CancelJob(job.ID))
	require.Error(t, m.CancelJob("missing"))

	ctx := m.Start(context.Background(), job)
	require.NoError(t, m.CancelJob(job.ID))
	require.Equal(t, JobCancelled, job.GetStatus())
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	job.SetStatus(JobCompleted)
	job.SetError(errors.New("late"))
	require.Equal(t, JobCancelled, job.GetStatus())
}

func TestSetError(t *testing.T) {
	m := NewManager()
	job := m.CreateJob("train", "fit")
	m.Start(context.Background(), job)

	job.SetError(errors.New("boom"))
	require.Equal(t, JobFailed, job.GetStatus())
	require.EqualError(t, job.Error, "boom")
	require.NotNil(t, job.EndTime)
}
