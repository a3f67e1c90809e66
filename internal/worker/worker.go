// Package worker executes one job end to end: AI plan building, render
// planning, frame composition, and encoding, driving the job state
// machine and persisting every visible change.
package worker

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"docuvid/internal/ai"
	"docuvid/internal/compose"
	"docuvid/internal/encoder"
	"docuvid/internal/jobs"
	"docuvid/internal/models"
	"docuvid/internal/render"
	"docuvid/internal/storage"
	"docuvid/internal/store"
)

const persistTimeout = 5 * time.Second

// Planner builds the complete scene plan for a job. Satisfied by
// ai.Orchestrator.
type Planner interface {
	BuildScenePlan(ctx context.Context, job *models.Job, hooks ai.Hooks) (*models.ScenePlan, error)
}

// Exporter encodes a frame stream plus audio timeline into the final
// video. Satisfied by encoder.Encoder.
type Exporter interface {
	Encode(ctx context.Context, frames func() encoder.FrameSource, timeline *compose.AudioTimeline, opts encoder.EncodeOptions) (*models.OutputDescriptor, error)
}

// Stage progress sub-ranges within the job's overall [0, 1].
var stageRanges = map[string][2]float64{
	"classify":    {0.00, 0.15},
	"script":      {0.15, 0.30},
	"voiceover":   {0.30, 0.55},
	"backgrounds": {0.55, 0.65},
	"compose":     {0.65, 0.90},
	"export":      {0.90, 1.00},
}

// When background generation is disabled the voiceover stage absorbs the
// backgrounds range.
var voiceoverRangeNoBackgrounds = [2]float64{0.30, 0.65}

type Pipeline struct {
	store       store.JobStore
	broadcaster *jobs.Broadcaster
	planner     Planner
	exporter    Exporter
	artifacts   *storage.Storage
}

func New(jobStore store.JobStore, broadcaster *jobs.Broadcaster, planner Planner, exporter Exporter, artifacts *storage.Storage) *Pipeline {
	return &Pipeline{
		store:       jobStore,
		broadcaster: broadcaster,
		planner:     planner,
		exporter:    exporter,
		artifacts:   artifacts,
	}
}

// Run executes one job. It never returns an error: every outcome ends in
// a terminal job state that is persisted and broadcast.
func (p *Pipeline) Run(ctx context.Context, job *models.Job) {
	machine := jobs.NewMachine(job, p.broadcaster)
	defer p.artifacts.CleanupJob(job.ID)
	// The terminal state lives in the store from here on; dropping the
	// broadcast snapshot keeps the broadcaster from growing forever.
	defer p.broadcaster.Forget(job.ID)

	if ctx.Err() != nil {
		// Cancelled while queued.
		machine.Cancel()
		p.persist(machine)
		return
	}

	kind, err := p.execute(ctx, job, machine)
	if err == nil {
		p.persist(machine)
		return
	}

	p.artifacts.RemoveOutput(job.ID)

	switch {
	case errors.Is(err, context.Canceled):
		log.Printf("[Worker] Job %s cancelled", job.ID)
		machine.Cancel()
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("[Worker] Job %s exceeded its time ceiling", job.ID)
		machine.Fail(models.ErrorKindTimeout, "job exceeded its time limit")
	default:
		log.Printf("[Worker] Job %s failed: %v", job.ID, err)
		machine.Fail(kind, err.Error())
	}
	p.persist(machine)
}

func (p *Pipeline) execute(ctx context.Context, job *models.Job, machine *jobs.Machine) (models.ErrorKind, error) {
	if len(job.Inputs) == 0 {
		return models.ErrorKindValidation, errors.New("job has no scene inputs")
	}
	width, height, err := job.Settings.Size()
	if err != nil {
		return models.ErrorKindValidation, err
	}

	voiceRange := stageRanges["voiceover"]
	if !job.Settings.GenerateBackgrounds {
		voiceRange = voiceoverRangeNoBackgrounds
	}

	hooks := ai.Hooks{
		Stage: func(status models.JobStatus) error {
			if err := machine.Transition(status); err != nil {
				return err
			}
			p.persist(machine)
			return nil
		},
		Progress: func(step string, frac float64) {
			r, ok := stageRanges[step]
			if !ok {
				return
			}
			if step == "voiceover" {
				r = voiceRange
			}
			machine.SetProgress(step, r[0]+frac*(r[1]-r[0]))
		},
	}

	plan, err := p.planner.BuildScenePlan(ctx, job, hooks)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return models.ErrorKindUpstreamAI, err
	}

	if err := machine.Transition(models.JobStatusComposing); err != nil {
		return models.ErrorKindRender, err
	}
	p.persist(machine)

	renderPlan, err := render.BuildPlan(plan, job.Settings, job.MusicPath)
	if err != nil {
		if errors.Is(err, render.ErrPlanTooLong) {
			return models.ErrorKindValidation, err
		}
		return models.ErrorKindRender, err
	}

	timeline, err := compose.BuildAudioTimeline(renderPlan)
	if err != nil {
		return models.ErrorKindRender, err
	}

	compositor := compose.New(width, height, job.Settings.FPS)
	composeRange := stageRanges["compose"]
	exportRange := stageRanges["export"]

	var exporting sync.Once
	frames := func() encoder.FrameSource {
		return &progressSource{
			inner: compositor.Stream(renderPlan),
			report: func(frac float64) {
				machine.SetProgress("compose", composeRange[0]+frac*(composeRange[1]-composeRange[0]))
				if frac >= 1 {
					exporting.Do(func() {
						if err := machine.Transition(models.JobStatusExporting); err == nil {
							machine.SetProgress("export", exportRange[0])
							p.persist(machine)
						}
					})
				}
			},
		}
	}

	out, err := p.exporter.Encode(ctx, frames, timeline, encoder.EncodeOptions{
		Width:      width,
		Height:     height,
		FPS:        job.Settings.FPS,
		Bitrate:    job.Settings.Bitrate,
		OutputPath: p.artifacts.OutputPath(job.ID),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return models.ErrorKindRender, err
	}

	if err := machine.Complete(*out); err != nil {
		return models.ErrorKindRender, err
	}
	return "", nil
}

// persist writes the machine's current snapshot to the store. Runs on
// its own context: a cancelled job must still record its terminal state.
func (p *Pipeline) persist(machine *jobs.Machine) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	snapshot := machine.Snapshot()
	if err := p.store.Update(ctx, &snapshot); err != nil {
		log.Printf("[Worker] Failed to persist job %s: %v", snapshot.ID, err)
	}
}

// progressSource wraps a frame stream and reports consumption so the
// compose stage has real progress while frames are pulled lazily by the
// encoder.
type progressSource struct {
	inner  *compose.FrameStream
	served int
	report func(frac float64)
}

func (s *progressSource) Next() (*image.RGBA, bool) {
	frame, ok := s.inner.Next()
	if ok {
		s.served++
		if total := s.inner.Total(); total > 0 {
			s.report(float64(s.served) / float64(total))
		}
	}
	return frame, ok
}

func (s *progressSource) Total() int { return s.inner.Total() }
