// Package render turns a scene plan into a fully timed render plan. It is
// pure: no I/O, no clocks, deterministic output for a given input, so the
// layout and timing policy can be tested exhaustively.
package render

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"docuvid/internal/models"
)

const (
	// Title cards, silent with fade in/out.
	IntroDuration = 3500 * time.Millisecond
	OutroDuration = 3 * time.Second

	// Scenes never run shorter than this, even with brief narration.
	MinSceneDuration = 4 * time.Second

	// Data visuals (chart, diagram, table) hold on screen a little longer
	// so the viewer can actually read them.
	HoldExtra = 2 * time.Second

	// Adjacent instructions overlap by this much for the crossfade.
	CrossfadeDuration = 500 * time.Millisecond

	// Hard ceiling on output length.
	MaxTotalDuration = 30 * time.Minute

	overlayMaxChars = 80
)

// ErrPlanTooLong is returned when the timed plan exceeds MaxTotalDuration.
var ErrPlanTooLong = errors.New("render plan exceeds maximum duration")

// BuildPlan produces the timed instruction sequence for a scene plan.
// Instructions are contiguous: each one starts exactly where its
// predecessor ends, so the durations sum to the total. The crossfade is
// rendered inside the opening of each instruction and never stretches
// the timeline.
func BuildPlan(plan *models.ScenePlan, settings models.JobSettings, musicPath string) (*models.RenderPlan, error) {
	if plan == nil || len(plan.Scenes) == 0 {
		return nil, fmt.Errorf("scene plan has no scenes")
	}
	fps := settings.FPS
	if fps <= 0 {
		fps = 30
	}

	out := &models.RenderPlan{
		Crossfade: snapToFrame(CrossfadeDuration, fps),
		Watermark: plan.Watermark,
		MusicPath: musicPath,
	}

	cursor := time.Duration(0)
	push := func(ri models.RenderInstruction, duration time.Duration) {
		ri.Start = cursor
		ri.End = cursor + snapToFrame(duration, fps)
		out.Instructions = append(out.Instructions, ri)
		cursor = ri.End
	}

	push(models.RenderInstruction{
		Kind:       models.InstructionTitle,
		SceneIndex: -1,
		Title:      plan.Title,
		Overlay:    plan.IntroText,
		Layout:     models.LayoutSingle,
		FadeIn:     true,
	}, IntroDuration)

	for i := range plan.Scenes {
		scene := &plan.Scenes[i]
		audio := scene.Audio
		push(models.RenderInstruction{
			Kind:       models.InstructionScene,
			SceneIndex: scene.Index,
			Layout:     chooseLayout(scene),
			Effect:     sceneEffect(scene.Index),
			Overlay:    sceneOverlay(scene),
			Callout:    sceneCallout(scene),
			Visuals:    scene.Visuals,
			Audio:      &audio,
		}, sceneDuration(scene))
	}

	push(models.RenderInstruction{
		Kind:       models.InstructionTitle,
		SceneIndex: -2,
		Title:      plan.OutroText,
		Layout:     models.LayoutSingle,
		FadeOut:    true,
	}, OutroDuration)

	out.Total = out.Instructions[len(out.Instructions)-1].End
	if out.Total > MaxTotalDuration {
		return nil, fmt.Errorf("%w: %v > %v", ErrPlanTooLong, out.Total, MaxTotalDuration)
	}
	return out, nil
}

// sceneDuration is the narration length, floored at MinSceneDuration,
// with extra hold time for data visuals.
func sceneDuration(scene *models.Scene) time.Duration {
	d := scene.Duration()
	if d < MinSceneDuration {
		d = MinSceneDuration
	}
	if isDataVisual(scene.Classification) {
		d += HoldExtra
	}
	return d
}

// chooseLayout applies the visual count policy: one visual fills the
// frame, two split it, three or more rotate as a carousel. A data visual
// paired with a photo becomes picture-in-picture instead of a split.
func chooseLayout(scene *models.Scene) models.Layout {
	if scene.LayoutHint != "" {
		return scene.LayoutHint
	}
	switch len(scene.Visuals) {
	case 0, 1:
		return models.LayoutSingle
	case 2:
		a, b := scene.Visuals[0].Classification, scene.Visuals[1].Classification
		if (isDataVisual(a) && b == models.ClassPhoto) || (isDataVisual(b) && a == models.ClassPhoto) {
			return models.LayoutPiP
		}
		return models.LayoutSplit
	default:
		return models.LayoutCarousel
	}
}

func isDataVisual(c models.Classification) bool {
	return c == models.ClassChart || c == models.ClassDiagram || c == models.ClassTable
}

// sceneEffect picks deterministic Ken Burns parameters. Pan direction
// cycles through the four diagonals and zoom direction alternates, so
// consecutive scenes never drift the same way.
func sceneEffect(index int) models.EffectParams {
	if index < 0 {
		index = -index
	}
	p := models.EffectParams{
		ZoomStart: 1.0,
		ZoomEnd:   1.25,
	}
	if index%2 == 1 {
		p.ZoomStart, p.ZoomEnd = p.ZoomEnd, p.ZoomStart
	}

	const pan = 0.08
	switch index % 4 {
	case 0:
		p.PanX, p.PanY = pan, pan
	case 1:
		p.PanX, p.PanY = -pan, pan
	case 2:
		p.PanX, p.PanY = pan, -pan
	default:
		p.PanX, p.PanY = -pan, -pan
	}
	return p
}

// sceneOverlay shows a narration excerpt as a lower third, but only when
// the scene has no document visual to carry the content itself.
func sceneOverlay(scene *models.Scene) string {
	for _, v := range scene.Visuals {
		if v.Source == models.VisualSourceDocument {
			return ""
		}
	}
	return excerpt(scene.Narration, overlayMaxChars)
}

// sceneCallout labels data visuals so the viewer knows what they are
// holding on.
func sceneCallout(scene *models.Scene) string {
	if !isDataVisual(scene.Classification) {
		return ""
	}
	tag := string(scene.Classification)
	return strings.ToUpper(tag[:1]) + tag[1:]
}

// excerpt returns the first sentence of text, truncated at maxChars on a
// word boundary.
func excerpt(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i > 0 {
		text = text[:i+1]
	}
	if len(text) <= maxChars {
		return text
	}
	cut := strings.LastIndex(text[:maxChars], " ")
	if cut <= 0 {
		cut = maxChars
	}
	return text[:cut] + "..."
}

// snapToFrame rounds a duration to a whole number of frames so instruction
// boundaries land exactly on frame ticks.
func snapToFrame(d time.Duration, fps int) time.Duration {
	frame := time.Second / time.Duration(fps)
	frames := math.Round(float64(d) / float64(frame))
	return time.Duration(frames) * frame
}
