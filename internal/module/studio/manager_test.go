package studio

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemkit/server/internal/shared/config"
	apperrors "github.com/gemkit/server/internal/shared/errors"
)

func newTestManager(t *testing.T, up Uploader, gen Generator) *Manager {
	t.Helper()
	m := NewManager(NewOrchestrator(up, gen, nil), nil, config.PipelineConfig{
		MaxConcurrentRuns: 2,
		RunRetention:      time.Hour,
		CleanupInterval:   time.Minute,
		ProgressClearWait: 10 * time.Millisecond,
	}, nil)
	t.Cleanup(m.Stop)
	return m
}

func waitTerminal(t *testing.T, m *Manager, id uuid.UUID) Run {
	t.Helper()
	var run Run
	require.Eventually(t, func() bool {
		got, err := m.Get(id)
		if err != nil {
			return false
		}
		run = got
		return run.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return run
}

func TestSubmitRequiresImages(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})

	_, err := m.Submit(context.Background(), RunInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRunLifecycle(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})

	run, err := m.Submit(context.Background(), runInput(2, 1))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run.ID)
	require.NotNil(t, run.Progress)
	assert.Equal(t, TotalSteps(2), run.Progress.Total)

	final := waitTerminal(t, m, run.ID)
	assert.Equal(t, RunStatusCompleted, final.Status)
	assert.Empty(t, final.Error)
	require.NotNil(t, final.CompletedAt)
	assert.Len(t, final.Aggregate.BackgroundAssets, 5)
	assert.Len(t, final.Aggregate.ObjectResults, 2)

	// Progress disappears shortly after the run settles.
	require.Eventually(t, func() bool {
		got, err := m.Get(run.ID)
		return err == nil && got.Progress == nil
	}, time.Second, 5*time.Millisecond)
}

func TestRunFailureSurfacesError(t *testing.T) {
	m := newTestManager(t, &fakeUploader{failOn: "ring-0.jpg"}, &fakeGenerator{})

	run, err := m.Submit(context.Background(), runInput(1, 0))
	require.NoError(t, err, "submission itself succeeds")

	final := waitTerminal(t, m, run.ID)
	assert.Equal(t, RunStatusFailed, final.Status)
	assert.Contains(t, final.Error, "ring-0.jpg")
}

func TestGetUnknownRun(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})

	_, err := m.Get(uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExport(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})

	run, err := m.Submit(context.Background(), runInput(1, 0))
	require.NoError(t, err)
	waitTerminal(t, m, run.ID)

	text, err := m.Export(run.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "Background assets (5):")
	assert.Contains(t, text, "Item 1:")
}

func TestExportRejectsUnfinishedRun(t *testing.T) {
	m := newTestManager(t, &fakeUploader{failOn: "ring-0.jpg"}, &fakeGenerator{})

	run, err := m.Submit(context.Background(), runInput(1, 0))
	require.NoError(t, err)
	waitTerminal(t, m, run.ID)

	_, err = m.Export(run.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestEvictExpired(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})

	run, err := m.Submit(context.Background(), runInput(1, 0))
	require.NoError(t, err)
	waitTerminal(t, m, run.ID)

	m.evictExpired(time.Now().Add(2 * time.Hour))

	_, err = m.Get(run.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSnapshotDoesNotAliasLiveState(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeGenerator{})

	run, err := m.Submit(context.Background(), runInput(1, 0))
	require.NoError(t, err)
	final := waitTerminal(t, m, run.ID)

	final.Aggregate.BackgroundAssets[0] = "mutated"

	again, err := m.Get(run.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Aggregate.BackgroundAssets[0])
}
