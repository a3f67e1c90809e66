package ai

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"docuvid/internal/effects"
	"docuvid/internal/models"
)

// voiceParallelism bounds concurrent TTS requests per job.
const voiceParallelism = 4

// Hooks let the caller observe pipeline stages without the orchestrator
// knowing about the job state machine. Stage is called on entering each
// stage; a non-nil return aborts the plan. Progress reports stage-local
// completion in [0, 1]. Either hook may be nil.
type Hooks struct {
	Stage    func(status models.JobStatus) error
	Progress func(step string, frac float64)
}

func (h Hooks) stage(status models.JobStatus) error {
	if h.Stage == nil {
		return nil
	}
	return h.Stage(status)
}

func (h Hooks) progress(step string, frac float64) {
	if h.Progress != nil {
		h.Progress(step, frac)
	}
}

// Orchestrator drives the AI stages of a job: classify document images,
// write the narration script, synthesize voiceover, and generate
// backgrounds for scenes that have no usable visuals. It owns retry and
// degradation policy; providers stay dumb.
type Orchestrator struct {
	classifier Classifier
	writer     ScriptWriter
	voicer     Voicer
	images     ImageGenerator // nil disables background generation
	prober     DurationProber // nil keeps provider duration estimates
	workDir    string
}

func NewOrchestrator(classifier Classifier, writer ScriptWriter, voicer Voicer, images ImageGenerator, prober DurationProber, workDir string) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		writer:     writer,
		voicer:     voicer,
		images:     images,
		prober:     prober,
		workDir:    workDir,
	}
}

// BuildScenePlan runs the full AI pipeline for one job and returns the
// complete scene plan. Script or voiceover failure fails the job; a
// failed background generation degrades that one scene to a gradient and
// the job continues.
func (o *Orchestrator) BuildScenePlan(ctx context.Context, job *models.Job, hooks Hooks) (*models.ScenePlan, error) {
	if len(job.Inputs) == 0 {
		return nil, fmt.Errorf("job %s has no inputs", job.ID)
	}

	if err := hooks.stage(models.JobStatusClassifying); err != nil {
		return nil, err
	}
	if err := o.classifyInputs(ctx, job.Inputs, hooks); err != nil {
		return nil, err
	}

	if err := hooks.stage(models.JobStatusScripting); err != nil {
		return nil, err
	}
	script, err := o.writeScript(ctx, job.Title, job.Inputs)
	if err != nil {
		return nil, err
	}

	plan := assemblePlan(job.Title, script, job.Inputs)

	if err := hooks.stage(models.JobStatusVoiceover); err != nil {
		return nil, err
	}
	if err := o.synthesizeVoiceover(ctx, job, plan, hooks); err != nil {
		return nil, err
	}

	if o.images != nil && job.Settings.GenerateBackgrounds {
		if err := hooks.stage(models.JobStatusBackgrounds); err != nil {
			return nil, err
		}
		o.generateBackgrounds(ctx, job, plan, hooks)
	}

	// Scenes that still have no visuals get a deterministic gradient so
	// the compositor never renders an empty frame.
	width, height, err := job.Settings.Size()
	if err != nil {
		return nil, err
	}
	for i := range plan.Scenes {
		if len(plan.Scenes[i].Visuals) == 0 {
			plan.Scenes[i].Visuals = append(plan.Scenes[i].Visuals, models.VisualAsset{
				Image:  effects.Gradient(width, height, plan.Scenes[i].Index),
				Source: models.VisualSourceFallback,
			})
		}
	}

	return plan, nil
}

// classifyInputs tags every image in place. A classification that still
// fails after retries degrades to photo so the pipeline keeps moving.
func (o *Orchestrator) classifyInputs(ctx context.Context, inputs []models.SceneInput, hooks Hooks) error {
	total := 0
	for _, in := range inputs {
		total += len(in.Images)
	}
	if total == 0 {
		hooks.progress("classify", 1)
		return nil
	}

	done := 0
	for i := range inputs {
		for j := range inputs[i].Images {
			img := &inputs[i].Images[j]

			var tag models.Classification
			err := withRetry(ctx, fmt.Sprintf("classify %s", img.Ref), func(ctx context.Context) error {
				var cerr error
				tag, cerr = o.classifier.Classify(ctx, img.Image, img.Ref)
				return cerr
			})
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				log.Printf("[Orchestrator] classification failed for %s, treating as photo: %v", img.Ref, err)
				tag = models.ClassPhoto
			}
			img.Classification = tag

			done++
			hooks.progress("classify", float64(done)/float64(total))
		}
	}
	return nil
}

// writeScript generates and validates the narration script. The scene
// count must match the inputs and every narration must be non-empty;
// violations count as invalid responses and are retried.
func (o *Orchestrator) writeScript(ctx context.Context, title string, inputs []models.SceneInput) (*Script, error) {
	var script *Script
	err := withRetry(ctx, "write script", func(ctx context.Context) error {
		s, werr := o.writer.WriteScript(ctx, title, inputs)
		if werr != nil {
			return werr
		}
		if verr := validateScript(s, len(inputs)); verr != nil {
			return verr
		}
		script = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return script, nil
}

func validateScript(s *Script, wantScenes int) error {
	if s == nil || len(s.Scenes) == 0 {
		return fmt.Errorf("%w: script has no scenes", ErrInvalidResponse)
	}
	if len(s.Scenes) != wantScenes {
		return fmt.Errorf("%w: got %d scenes, want %d", ErrInvalidResponse, len(s.Scenes), wantScenes)
	}
	for i, scene := range s.Scenes {
		if strings.TrimSpace(scene.Narration) == "" {
			return fmt.Errorf("%w: scene %d has empty narration", ErrInvalidResponse, i)
		}
	}
	return nil
}

// assemblePlan pairs script scenes with input visuals. The first logo
// image becomes the plan watermark; logo and decorative images never
// appear as scene visuals.
func assemblePlan(title string, script *Script, inputs []models.SceneInput) *models.ScenePlan {
	plan := &models.ScenePlan{
		Title:     script.Title,
		IntroText: script.Intro,
		OutroText: script.Outro,
		Mood:      script.Mood,
	}
	if plan.Title == "" {
		plan.Title = title
	}

	for i, in := range inputs {
		scene := models.Scene{
			Index:            in.Index,
			Narration:        script.Scenes[i].Narration,
			BackgroundPrompt: script.Scenes[i].BackgroundPrompt,
			Classification:   in.Classification(),
		}
		for _, img := range in.Images {
			switch img.Classification {
			case models.ClassLogo:
				if plan.Watermark == nil {
					plan.Watermark = &models.VisualAsset{
						Image:          img.Image,
						Ref:            img.Ref,
						Source:         models.VisualSourceDocument,
						Classification: models.ClassLogo,
					}
				}
			case models.ClassDecorative:
				// Skipped: decorative images add noise, not content.
			default:
				scene.Visuals = append(scene.Visuals, models.VisualAsset{
					Image:          img.Image,
					Ref:            img.Ref,
					Source:         models.VisualSourceDocument,
					Classification: img.Classification,
				})
			}
		}
		plan.Scenes = append(plan.Scenes, scene)
	}
	return plan
}

// synthesizeVoiceover runs TTS for every scene with bounded parallelism.
// Any scene failing after retries fails the whole job: a video with a
// silent scene is worse than no video.
func (o *Orchestrator) synthesizeVoiceover(ctx context.Context, job *models.Job, plan *models.ScenePlan, hooks Hooks) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(voiceParallelism)

	done := make(chan int, len(plan.Scenes))
	total := len(plan.Scenes)

	for i := range plan.Scenes {
		i := i
		g.Go(func() error {
			scene := &plan.Scenes[i]

			var result *SpeechResult
			err := withRetry(gctx, fmt.Sprintf("voiceover scene %d", scene.Index), func(ctx context.Context) error {
				var serr error
				result, serr = o.voicer.Synthesize(ctx, scene.Narration, job.Settings.Voice)
				return serr
			})
			if err != nil {
				return err
			}

			path := filepath.Join(o.workDir, fmt.Sprintf("%s_scene_%03d.%s", job.ID, scene.Index, result.Format))
			if err := os.WriteFile(path, result.AudioData, 0o644); err != nil {
				return fmt.Errorf("failed to write audio for scene %d: %w", scene.Index, err)
			}

			duration := result.Duration
			if o.prober != nil {
				if probed, perr := o.prober.ProbeDuration(gctx, path); perr == nil {
					duration = probed
				} else {
					log.Printf("[Orchestrator] duration probe failed for scene %d, keeping estimate %v: %v", scene.Index, duration, perr)
				}
			}

			scene.Audio = models.AudioAsset{Path: path, Duration: duration}
			done <- 1
			return nil
		})
	}

	finished := 0
	progressDone := make(chan struct{})
	go func() {
		for range done {
			finished++
			hooks.progress("voiceover", float64(finished)/float64(total))
		}
		close(progressDone)
	}()

	err := g.Wait()
	close(done)
	<-progressDone
	return err
}

// generateBackgrounds fills scenes that have no visuals. Failures degrade
// per scene and never fail the job.
func (o *Orchestrator) generateBackgrounds(ctx context.Context, job *models.Job, plan *models.ScenePlan, hooks Hooks) {
	width, height, err := job.Settings.Size()
	if err != nil {
		width, height = 1920, 1080
	}

	var targets []int
	for i := range plan.Scenes {
		if len(plan.Scenes[i].Visuals) == 0 {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		hooks.progress("backgrounds", 1)
		return
	}

	for n, i := range targets {
		if ctx.Err() != nil {
			return
		}
		scene := &plan.Scenes[i]
		prompt := scene.BackgroundPrompt
		if prompt == "" {
			prompt = backgroundPromptFromNarration(scene.Narration, plan.Mood)
		}

		var img models.VisualAsset
		err := withRetry(ctx, fmt.Sprintf("background scene %d", scene.Index), func(ctx context.Context) error {
			generated, gerr := o.images.Generate(ctx, prompt, width, height)
			if gerr != nil {
				return gerr
			}
			img = models.VisualAsset{Image: generated, Source: models.VisualSourceGenerated}
			return nil
		})
		if err != nil {
			log.Printf("[Orchestrator] background generation failed for scene %d, using gradient: %v", scene.Index, err)
			img = models.VisualAsset{Image: effects.Gradient(width, height, scene.Index), Source: models.VisualSourceFallback}
		}
		scene.Visuals = append(scene.Visuals, img)

		hooks.progress("backgrounds", float64(n+1)/float64(len(targets)))
	}
}

func backgroundPromptFromNarration(narration, mood string) string {
	const maxLen = 160
	if len(narration) > maxLen {
		narration = narration[:maxLen]
	}
	prompt := fmt.Sprintf("Abstract, softly lit background illustrating: %s", narration)
	if mood != "" {
		prompt += fmt.Sprintf(". Mood: %s", mood)
	}
	return prompt
}
