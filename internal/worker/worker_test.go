package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuvid/internal/ai"
	"docuvid/internal/compose"
	"docuvid/internal/encoder"
	"docuvid/internal/jobs"
	"docuvid/internal/models"
	"docuvid/internal/storage"
	"docuvid/internal/store"
)

// fakePlanner walks the same stage sequence as the real orchestrator and
// returns a minimal but valid scene plan.
type fakePlanner struct {
	failAt models.JobStatus // zero value disables failure injection
}

func (f *fakePlanner) BuildScenePlan(ctx context.Context, job *models.Job, hooks ai.Hooks) (*models.ScenePlan, error) {
	stages := []models.JobStatus{models.JobStatusClassifying, models.JobStatusScripting, models.JobStatusVoiceover}
	if job.Settings.GenerateBackgrounds {
		stages = append(stages, models.JobStatusBackgrounds)
	}
	for _, stage := range stages {
		if err := hooks.Stage(stage); err != nil {
			return nil, err
		}
		if stage == f.failAt {
			return nil, errors.New("provider exploded")
		}
	}
	hooks.Progress("voiceover", 1)

	plan := &models.ScenePlan{Title: job.Title, IntroText: "welcome", OutroText: "thanks"}
	for i, in := range job.Inputs {
		plan.Scenes = append(plan.Scenes, models.Scene{
			Index:     in.Index,
			Narration: in.Text,
			Audio:     models.AudioAsset{Path: "/tmp/na.mp3", Duration: time.Duration(3+i) * time.Second},
		})
	}
	return plan, nil
}

// drainExporter consumes every frame so the compose and export stages
// progress exactly as they would against a real encoder.
type drainExporter struct {
	fail   bool
	block  bool
	frames int
}

func (e *drainExporter) Encode(ctx context.Context, frames func() encoder.FrameSource, timeline *compose.AudioTimeline, opts encoder.EncodeOptions) (*models.OutputDescriptor, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	src := frames()
	for {
		if _, ok := src.Next(); !ok {
			break
		}
		e.frames++
	}
	if e.fail {
		return nil, errors.New("ffmpeg exited with status 1")
	}
	return &models.OutputDescriptor{
		Path:           opts.OutputPath,
		Width:          opts.Width,
		Height:         opts.Height,
		Duration:       timeline.Total,
		EncoderProfile: encoder.ProfileCPU,
	}, nil
}

func newPipeline(t *testing.T, planner Planner, exporter Exporter) (*Pipeline, store.JobStore) {
	t.Helper()
	artifacts, err := storage.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	jobStore := store.NewMemoryStore()
	return New(jobStore, jobs.NewBroadcaster(), planner, exporter, artifacts), jobStore
}

func newPipelineJob(t *testing.T, jobStore store.JobStore) *models.Job {
	t.Helper()
	settings := models.DefaultSettings()
	settings.Resolution = "160x90"
	settings.FPS = 10
	settings.GenerateBackgrounds = false

	job := &models.Job{
		ID:        uuid.New(),
		Title:     "annual report",
		Status:    models.JobStatusPending,
		Settings:  settings,
		CreatedAt: time.Now(),
		Inputs: []models.SceneInput{
			{Index: 0, Text: "Revenue grew twelve percent."},
			{Index: 1, Text: "Costs stayed flat."},
		},
	}
	require.NoError(t, jobStore.Create(context.Background(), job))
	return job
}

func TestRunCompletesJob(t *testing.T) {
	exporter := &drainExporter{}
	p, jobStore := newPipeline(t, &fakePlanner{}, exporter)
	job := newPipelineJob(t, jobStore)

	p.Run(context.Background(), job)

	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.Output)
	assert.Equal(t, encoder.ProfileCPU, got.Output.EncoderProfile)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Error)
	assert.Greater(t, exporter.frames, 0)
}

func TestRunScriptFailureFailsJob(t *testing.T) {
	p, jobStore := newPipeline(t, &fakePlanner{failAt: models.JobStatusScripting}, &drainExporter{})
	job := newPipelineJob(t, jobStore)

	p.Run(context.Background(), job)

	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrorKindUpstreamAI, got.Error.Kind)
}

func TestRunEncodeFailureFailsJob(t *testing.T) {
	p, jobStore := newPipeline(t, &fakePlanner{}, &drainExporter{fail: true})
	job := newPipelineJob(t, jobStore)

	p.Run(context.Background(), job)

	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrorKindRender, got.Error.Kind)
}

func TestRunNoInputsIsValidationFailure(t *testing.T) {
	p, jobStore := newPipeline(t, &fakePlanner{}, &drainExporter{})
	job := newPipelineJob(t, jobStore)
	job.Inputs = nil

	p.Run(context.Background(), job)

	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrorKindValidation, got.Error.Kind)
}

func TestRunCancelMidEncode(t *testing.T) {
	p, jobStore := newPipeline(t, &fakePlanner{}, &drainExporter{block: true})
	job := newPipelineJob(t, jobStore)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, job)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Nil(t, got.Error)
}

func TestRunTimeoutIsTimeoutFailure(t *testing.T) {
	p, jobStore := newPipeline(t, &fakePlanner{}, &drainExporter{block: true})
	job := newPipelineJob(t, jobStore)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Run(ctx, job)

	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrorKindTimeout, got.Error.Kind)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	p, jobStore := newPipeline(t, &fakePlanner{}, &drainExporter{})
	job := newPipelineJob(t, jobStore)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx, job)

	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestRunBroadcastsTransitions(t *testing.T) {
	artifacts, err := storage.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	jobStore := store.NewMemoryStore()
	broadcaster := jobs.NewBroadcaster()
	p := New(jobStore, broadcaster, &fakePlanner{}, &drainExporter{}, artifacts)
	job := newPipelineJob(t, jobStore)

	ch, stop := broadcaster.Subscribe(job.ID)
	defer stop()

	p.Run(context.Background(), job)

	// Delivery is best effort: late progress events may be dropped once
	// the buffer fills, but the early transitions always fit.
	var statuses []models.JobStatus
	for len(ch) > 0 {
		statuses = append(statuses, (<-ch).Status)
	}
	assert.Contains(t, statuses, models.JobStatusClassifying)
	assert.Contains(t, statuses, models.JobStatusComposing)

	// Run releases the broadcast snapshot once the terminal state is in
	// the store; a fresh subscriber gets nothing and reads the store.
	latest, stopLate := broadcaster.Subscribe(job.ID)
	defer stopLate()
	select {
	case ev := <-latest:
		t.Fatalf("expected no snapshot after Run, got %s", ev.Status)
	default:
	}
	got, err := jobStore.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}
