// Package compose renders a timed render plan into video frames and an
// audio timeline. Frames are produced lazily, one at a time, so a full
// video never sits in memory; the encoder pulls frames as it needs them.
package compose

import (
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"

	"docuvid/internal/effects"
	"docuvid/internal/models"
)

const (
	// Title cards fade over this span at the very start and end.
	fadeDuration = 500 * time.Millisecond

	// The lower third eases in over the first second of a scene.
	overlayFadeIn = time.Second

	// Picture-in-picture inset size as a fraction of frame width.
	pipScale = 0.30
	pipMargin = 32

	// Gap between the two halves of a split layout, in pixels.
	splitGap = 8
)

// Compositor renders frames for one output geometry.
type Compositor struct {
	width  int
	height int
	fps    int
}

func New(width, height, fps int) *Compositor {
	return &Compositor{width: width, height: height, fps: fps}
}

func (c *Compositor) frameDuration() time.Duration {
	return time.Second / time.Duration(c.fps)
}

// FrameCount returns the number of frames the plan renders to.
func (c *Compositor) FrameCount(plan *models.RenderPlan) int {
	return int(plan.Total / c.frameDuration())
}

// Stream returns a lazy frame iterator over the plan.
func (c *Compositor) Stream(plan *models.RenderPlan) *FrameStream {
	return &FrameStream{
		c:     c,
		plan:  plan,
		total: c.FrameCount(plan),
	}
}

// FrameStream yields frames in order. It is not safe for concurrent use.
type FrameStream struct {
	c     *Compositor
	plan  *models.RenderPlan
	next  int
	total int
}

// Total reports how many frames the stream will yield.
func (s *FrameStream) Total() int { return s.total }

// Next renders and returns the next frame. ok is false when the stream is
// exhausted.
func (s *FrameStream) Next() (frame *image.RGBA, ok bool) {
	if s.next >= s.total {
		return nil, false
	}
	frame = s.c.FrameAt(s.plan, s.next)
	s.next++
	return frame, true
}

// FrameAt renders frame n of the plan. It is pure: the same (plan, n)
// always produces the same pixels.
func (c *Compositor) FrameAt(plan *models.RenderPlan, n int) *image.RGBA {
	t := time.Duration(n) * c.frameDuration()

	// Instructions are contiguous, so exactly one covers t.
	idx := len(plan.Instructions) - 1
	for i := range plan.Instructions {
		ri := &plan.Instructions[i]
		if t >= ri.Start && t < ri.End {
			idx = i
			break
		}
	}
	current := &plan.Instructions[idx]

	frame := c.renderInstruction(current, t)

	// The crossfade lives inside the opening of each instruction: the
	// previous instruction's final frame dissolves into this one without
	// shifting any boundary.
	if idx > 0 && plan.Crossfade > 0 {
		if into := t - current.Start; into < plan.Crossfade {
			prev := c.renderInstruction(&plan.Instructions[idx-1], t)
			blend := float64(into) / float64(plan.Crossfade)
			frame = effects.Crossfade(prev, frame, effects.EaseInOut(blend))
		}
	}

	if plan.Watermark != nil {
		effects.DrawWatermark(frame, plan.Watermark.Image)
	}
	return frame
}

// renderInstruction draws one instruction's frame at absolute time t.
// Times outside the instruction's span clamp to its first or last frame.
func (c *Compositor) renderInstruction(ri *models.RenderInstruction, t time.Duration) *image.RGBA {
	local := t - ri.Start
	if local < 0 {
		local = 0
	}
	span := ri.Duration()
	if local > span {
		local = span
	}
	progress := 0.0
	if span > 0 {
		progress = float64(local) / float64(span)
		if progress > 1 {
			progress = 1
		}
	}

	var frame *image.RGBA
	if ri.Kind == models.InstructionTitle {
		frame = effects.TitleCard(c.width, c.height, ri.Title, ri.Overlay, ri.SceneIndex)
	} else {
		frame = c.renderScene(ri, progress)
	}

	if ri.FadeIn && local < fadeDuration {
		effects.Fade(frame, float64(local)/float64(fadeDuration))
	}
	if ri.FadeOut && span-local < fadeDuration {
		effects.Fade(frame, float64(span-local)/float64(fadeDuration))
	}
	return frame
}

func (c *Compositor) renderScene(ri *models.RenderInstruction, progress float64) *image.RGBA {
	var frame *image.RGBA
	switch ri.Layout {
	case models.LayoutSplit:
		frame = c.renderSplit(ri)
	case models.LayoutPiP:
		frame = c.renderPiP(ri, progress)
	case models.LayoutCarousel:
		frame = c.renderCarousel(ri, progress)
	default:
		frame = c.renderSingle(ri, progress)
	}

	effects.ColorGrade(frame, effects.DefaultWarmth, effects.DefaultContrast)
	effects.Vignette(frame, effects.DefaultVignette)

	if ri.Overlay != "" {
		alpha := 1.0
		if span := ri.Duration(); span > 0 {
			elapsed := time.Duration(progress * float64(span))
			if elapsed < overlayFadeIn {
				alpha = float64(elapsed) / float64(overlayFadeIn)
			}
		}
		effects.DrawLowerThird(frame, ri.Overlay, alpha)
	}
	if ri.Callout != "" {
		effects.DrawCallout(frame, ri.Callout)
	}
	return frame
}

func (c *Compositor) renderSingle(ri *models.RenderInstruction, progress float64) *image.RGBA {
	if len(ri.Visuals) == 0 {
		return effects.Gradient(c.width, c.height, ri.SceneIndex)
	}
	return effects.PanZoom(ri.Visuals[0].Image, c.width, c.height, ri.Effect, progress)
}

// renderSplit places two visuals side by side with a thin gap. Split
// frames are static; drifting both halves looks seasick.
func (c *Compositor) renderSplit(ri *models.RenderInstruction) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	halfW := (c.width - splitGap) / 2

	left := effects.FitFrame(ri.Visuals[0].Image, halfW, c.height)
	right := effects.FitFrame(ri.Visuals[1].Image, halfW, c.height)

	draw.Draw(frame, image.Rect(0, 0, halfW, c.height), left, image.Point{}, draw.Src)
	draw.Draw(frame, image.Rect(halfW+splitGap, 0, c.width, c.height), right, image.Point{}, draw.Src)
	return frame
}

// renderPiP runs Ken Burns on the photo and pins the data visual as a
// static inset in the lower right.
func (c *Compositor) renderPiP(ri *models.RenderInstruction, progress float64) *image.RGBA {
	main, inset := pipRoles(ri.Visuals)

	frame := effects.PanZoom(main.Image, c.width, c.height, ri.Effect, progress)

	insetW := int(float64(c.width) * pipScale)
	b := inset.Image.Bounds()
	insetH := insetW
	if b.Dx() > 0 {
		insetH = int(float64(b.Dy()) * float64(insetW) / float64(b.Dx()))
	}
	scaled := effects.FitFrame(inset.Image, insetW, insetH)

	x0 := c.width - insetW - pipMargin
	y0 := c.height - insetH - pipMargin
	draw.Draw(frame, image.Rect(x0, y0, x0+insetW, y0+insetH), scaled, image.Point{}, draw.Src)
	return frame
}

// pipRoles picks which visual drifts behind and which sits in the inset:
// the data visual is the inset, everything else is background.
func pipRoles(visuals []models.VisualAsset) (main, inset models.VisualAsset) {
	main, inset = visuals[0], visuals[1]
	switch main.Classification {
	case models.ClassChart, models.ClassDiagram, models.ClassTable:
		main, inset = inset, main
	}
	return main, inset
}

// renderCarousel shows each visual for an equal slice of the scene.
func (c *Compositor) renderCarousel(ri *models.RenderInstruction, progress float64) *image.RGBA {
	n := len(ri.Visuals)
	idx := int(progress * float64(n))
	if idx >= n {
		idx = n - 1
	}

	// Each slice gets its own pan/zoom pass so motion restarts per visual.
	sliceProgress := progress*float64(n) - float64(idx)
	return effects.PanZoom(ri.Visuals[idx].Image, c.width, c.height, ri.Effect, sliceProgress)
}

// ---------------------------------------------------------------------------
// Audio timeline
// ---------------------------------------------------------------------------

// AudioSegment is one narration clip placed on the output timeline.
type AudioSegment struct {
	Path   string
	Offset time.Duration
}

// AudioTimeline is everything the encoder needs to mix the audio track.
type AudioTimeline struct {
	Segments []AudioSegment
	Music    string // background music file, looped and ducked; empty = none
	Total    time.Duration
}

// Frame snapping can shave up to half a frame off an instruction, so the
// audio-fits check carries a small grace period.
const audioTolerance = 100 * time.Millisecond

// BuildAudioTimeline places each scene's narration at its instruction
// start. Narration clips never overlap: instructions are contiguous and
// every span covers its own audio.
func BuildAudioTimeline(plan *models.RenderPlan) (*AudioTimeline, error) {
	timeline := &AudioTimeline{
		Music: plan.MusicPath,
		Total: plan.Total,
	}
	for i := range plan.Instructions {
		ri := &plan.Instructions[i]
		if ri.Audio == nil || ri.Audio.Path == "" {
			continue
		}
		if ri.Audio.Duration > ri.Duration()+audioTolerance {
			return nil, fmt.Errorf("scene %d audio (%v) longer than its instruction (%v)",
				ri.SceneIndex, ri.Audio.Duration, ri.Duration())
		}
		timeline.Segments = append(timeline.Segments, AudioSegment{
			Path:   ri.Audio.Path,
			Offset: ri.Start,
		})
	}
	return timeline, nil
}
