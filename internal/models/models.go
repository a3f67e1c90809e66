package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums

// JobStatus is the lifecycle state of a generation job. The success path is
// pending → classifying → scripting → voiceover → backgrounds → composing →
// exporting → completed; backgrounds is skipped when disabled in settings.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusClassifying JobStatus = "classifying"
	JobStatusScripting   JobStatus = "scripting"
	JobStatusVoiceover   JobStatus = "voiceover"
	JobStatusBackgrounds JobStatus = "backgrounds"
	JobStatusComposing   JobStatus = "composing"
	JobStatusExporting   JobStatus = "exporting"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are accepted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Classification is the visual category assigned to an image by the Classifier.
type Classification string

const (
	ClassChart      Classification = "chart"
	ClassDiagram    Classification = "diagram"
	ClassTable      Classification = "table"
	ClassPhoto      Classification = "photo"
	ClassLogo       Classification = "logo"
	ClassDecorative Classification = "decorative"
	ClassNone       Classification = "none"
)

// Layout selects how a scene's visuals are composed into the frame.
type Layout string

const (
	LayoutSingle   Layout = "single"
	LayoutSplit    Layout = "split"
	LayoutPiP      Layout = "pip"
	LayoutCarousel Layout = "carousel"
)

// OutputMode selects which artifacts a job produces.
type OutputMode string

const (
	OutputModeVideo        OutputMode = "video"
	OutputModePresentation OutputMode = "presentation"
	OutputModeBoth         OutputMode = "both"
)

// ErrorKind distinguishes failure sources so the job owner knows whether to
// retry (upstream outage) or fix inputs (validation).
type ErrorKind string

const (
	ErrorKindUpstreamAI ErrorKind = "upstream_ai_failure"
	ErrorKindRender     ErrorKind = "render_failure"
	ErrorKindValidation ErrorKind = "validation_failure"
	ErrorKindTimeout    ErrorKind = "timeout"
)

// JobError is the structured error carried by a failed job.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// JobSettings holds per-job generation options. Zero values are filled in by
// DefaultSettings at submission time.
type JobSettings struct {
	Voice               string     `json:"voice"`                // TTS voice (alloy, echo, fable, onyx, nova, shimmer)
	Resolution          string     `json:"resolution"`           // "WIDTHxHEIGHT", e.g. "1920x1080"
	FPS                 int        `json:"fps"`                  // output frame rate
	Bitrate             string     `json:"bitrate"`              // encoder target bitrate, e.g. "12M"
	GenerateBackgrounds bool       `json:"generate_backgrounds"` // AI backgrounds for scenes with no visuals
	OutputMode          OutputMode `json:"output_mode"`          // video / presentation / both
}

// DefaultSettings returns the settings applied when a submission omits them.
func DefaultSettings() JobSettings {
	return JobSettings{
		Voice:               "onyx",
		Resolution:          "1920x1080",
		FPS:                 30,
		Bitrate:             "12M",
		GenerateBackgrounds: true,
		OutputMode:          OutputModeVideo,
	}
}

// Size parses the Resolution string into width and height.
func (s JobSettings) Size() (int, int, error) {
	parts := strings.SplitN(s.Resolution, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q", s.Resolution)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q", parts[0])
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q", parts[1])
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution must be positive, got %dx%d", w, h)
	}
	return w, h, nil
}

// Value implements driver.Valuer so settings persist as a JSONB column.
func (s JobSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for the JSONB settings column.
func (s *JobSettings) Scan(value interface{}) error {
	if value == nil {
		*s = JobSettings{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JobSettings", value)
	}
	return json.Unmarshal(bytes, s)
}

// Models

// Job is one document-to-video generation job. It is mutated only by the
// state machine owned by the worker executing it.
type Job struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Status      JobStatus         `json:"status"`
	Progress    float64           `json:"progress"` // 0.0–1.0, non-decreasing while active
	CurrentStep string            `json:"current_step"`
	Settings    JobSettings       `json:"settings"`
	Error       *JobError         `json:"error,omitempty"`
	Output      *OutputDescriptor `json:"output,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`

	// Inputs is the extracted document content this job renders. It is
	// carried in memory for the worker and never persisted.
	Inputs []SceneInput `json:"-"`

	// MusicPath optionally points at a background music file.
	MusicPath string `json:"-"`
}

// SceneImage is one image reference attached to a scene input, with the
// classification assigned by the Classifier.
type SceneImage struct {
	Ref            string
	Image          image.Image
	Classification Classification
}

// SceneInput is one unit of extracted source content. Immutable once
// produced by the extraction step.
type SceneInput struct {
	Index  int
	Text   string
	Images []SceneImage
}

// Classification returns the effective tag for layout purposes: the first
// non-logo image's tag, or ClassNone when the scene has no usable visuals.
func (s SceneInput) Classification() Classification {
	for _, img := range s.Images {
		if img.Classification == ClassLogo {
			continue
		}
		if img.Classification != "" {
			return img.Classification
		}
	}
	return ClassNone
}

// AudioAsset is a synthesized narration clip on disk.
type AudioAsset struct {
	Path     string
	Duration time.Duration
}

// VisualSource describes where a scene visual came from.
type VisualSource string

const (
	VisualSourceDocument  VisualSource = "document"
	VisualSourceGenerated VisualSource = "generated"
	VisualSourceFallback  VisualSource = "fallback"
)

// VisualAsset is one image available to the compositor for a scene.
type VisualAsset struct {
	Image          image.Image
	Ref            string
	Source         VisualSource
	Classification Classification
}

// Scene is one narrated unit of the output video, produced by the AI
// orchestrator. Scenes keep source-document order and are never reordered.
type Scene struct {
	Index            int
	Narration        string
	LayoutHint       Layout
	Classification   Classification
	Audio            AudioAsset
	Visuals          []VisualAsset
	BackgroundPrompt string
}

// Duration is the scene's target duration: the narration audio length.
func (s Scene) Duration() time.Duration {
	return s.Audio.Duration
}

// ScenePlan is the complete output of the AI orchestrator.
type ScenePlan struct {
	Title     string
	IntroText string
	OutroText string
	Mood      string
	Scenes    []Scene
	Watermark *VisualAsset // logo watermark, composited topmost; nil when the document has no logo
}

// EffectParams are the resolved cinematic parameters for one instruction.
// Pan offsets are fractions of the frame; zoom is a scale factor.
type EffectParams struct {
	ZoomStart float64
	ZoomEnd   float64
	PanX      float64
	PanY      float64
}

// InstructionKind distinguishes content scenes from generated title cards.
type InstructionKind string

const (
	InstructionScene InstructionKind = "scene"
	InstructionTitle InstructionKind = "title"
)

// RenderInstruction is one fully resolved, timed entry of a RenderPlan.
type RenderInstruction struct {
	Kind       InstructionKind
	SceneIndex int    // -1 for title cards
	Title      string // headline text for title cards
	Layout     Layout
	Effect     EffectParams
	Start      time.Duration
	End        time.Duration
	Overlay    string // lower-third overlay text
	Callout    string // callout box text for chart/diagram/table scenes
	Visuals    []VisualAsset
	Audio      *AudioAsset // nil for silent title cards
	FadeIn     bool
	FadeOut    bool
}

// Duration returns the instruction's span.
func (ri RenderInstruction) Duration() time.Duration {
	return ri.End - ri.Start
}

// RenderPlan is the timed instruction sequence consumed by the compositor.
// Adjacent instructions overlap by Crossfade; the last instruction ends at
// Total.
type RenderPlan struct {
	Instructions []RenderInstruction
	Total        time.Duration
	Crossfade    time.Duration
	Watermark    *VisualAsset
	MusicPath    string
}

// ProgressEvent is the immutable snapshot published on every transition and
// intra-stage progress update.
type ProgressEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   JobStatus `json:"status"`
	Step     string    `json:"step"`
	Progress float64   `json:"progress"`
}

// OutputDescriptor references the rendered video plus the facts needed for
// audit and debugging.
type OutputDescriptor struct {
	Path           string        `json:"path"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	Duration       time.Duration `json:"duration"`
	EncoderProfile string        `json:"encoder_profile"` // e.g. "h264_nvenc", "libx264"
}

// DTOs for API responses

type CreateJobRequest struct {
	Title    string       `json:"title"`
	Text     string       `json:"text"`
	Settings *JobSettings `json:"settings,omitempty"`
}

type CreateJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

type ListJobsResponse struct {
	Jobs   []Job `json:"jobs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
