package ai

import (
	"context"
	"image"
	"time"

	"docuvid/internal/models"
)

// ---------------------------------------------------------------------------
// Capability interfaces — the orchestrator only ever talks to these four.
// Concrete providers (OpenAI, Gemini, ElevenLabs) implement them so tests
// can substitute fakes and the worker never knows which vendor is wired.
// ---------------------------------------------------------------------------

// Classifier assigns a visual category to one extracted image.
type Classifier interface {
	Classify(ctx context.Context, img image.Image, ref string) (models.Classification, error)
}

// ScriptScene is one narrated scene of a generated script.
type ScriptScene struct {
	Index            int    `json:"index"`
	Narration        string `json:"narration"`
	BackgroundPrompt string `json:"background_prompt"`
}

// Script is the complete narration plan returned by a ScriptWriter.
type Script struct {
	Title  string        `json:"title"`
	Intro  string        `json:"intro"`
	Outro  string        `json:"outro"`
	Mood   string        `json:"mood"`
	Scenes []ScriptScene `json:"scenes"`
}

// ScriptWriter turns extracted document content into a narration script,
// one scene per input, preserving input order.
type ScriptWriter interface {
	WriteScript(ctx context.Context, title string, inputs []models.SceneInput) (*Script, error)
}

// SpeechResult is the common response type from any TTS provider.
type SpeechResult struct {
	AudioData []byte
	Format    string // "mp3", "wav", etc.
	Duration  time.Duration
}

// Voicer converts narration text into speech audio. voice selects the
// provider's voice; providers map unknown voices to their default.
type Voicer interface {
	Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error)
}

// ImageGenerator produces a background image for a scene with no usable
// document visuals.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, width, height int) (image.Image, error)
}

// DurationProber measures the real duration of an audio file on disk.
// The encoder's ffprobe wrapper satisfies it; when nil the orchestrator
// keeps the provider's estimate.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}
