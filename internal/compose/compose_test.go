package compose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuvid/internal/effects"
	"docuvid/internal/models"
	"docuvid/internal/render"
)

func testScenePlan(t *testing.T, scenes ...models.Scene) *models.RenderPlan {
	t.Helper()
	plan, err := render.BuildPlan(&models.ScenePlan{
		Title:     "Test Video",
		IntroText: "An introduction",
		OutroText: "The end",
		Scenes:    scenes,
	}, testSettings(), "")
	require.NoError(t, err)
	return plan
}

func testSettings() models.JobSettings {
	s := models.DefaultSettings()
	s.Resolution = "320x180"
	s.FPS = 10
	return s
}

func testScene(index int, visuals ...models.VisualAsset) models.Scene {
	if len(visuals) == 0 {
		visuals = []models.VisualAsset{{
			Image:  effects.Gradient(320, 180, index),
			Source: models.VisualSourceFallback,
		}}
	}
	return models.Scene{
		Index:     index,
		Narration: "Something happened this quarter. It mattered.",
		Audio:     models.AudioAsset{Path: "scene.mp3", Duration: 5 * time.Second},
		Visuals:   visuals,
	}
}

func gradientVisual(seed int, c models.Classification) models.VisualAsset {
	return models.VisualAsset{
		Image:          effects.Gradient(320, 180, seed),
		Source:         models.VisualSourceDocument,
		Classification: c,
	}
}

func TestFrameCountMatchesPlanTotal(t *testing.T) {
	plan := testScenePlan(t, testScene(0), testScene(1))
	c := New(320, 180, 10)

	want := int(plan.Total / (time.Second / 10))
	assert.Equal(t, want, c.FrameCount(plan))
}

func TestStreamYieldsExactlyFrameCountFrames(t *testing.T) {
	plan := testScenePlan(t, testScene(0))
	c := New(320, 180, 10)

	stream := c.Stream(plan)
	count := 0
	for {
		frame, ok := stream.Next()
		if !ok {
			break
		}
		require.NotNil(t, frame)
		assert.Equal(t, 320, frame.Bounds().Dx())
		assert.Equal(t, 180, frame.Bounds().Dy())
		count++
	}
	assert.Equal(t, c.FrameCount(plan), count)
	assert.Equal(t, stream.Total(), count)

	// Exhausted stream stays exhausted.
	_, ok := stream.Next()
	assert.False(t, ok)
}

func TestFrameAtDeterministic(t *testing.T) {
	plan := testScenePlan(t, testScene(0), testScene(1))
	c := New(320, 180, 10)

	n := c.FrameCount(plan) / 2
	a := c.FrameAt(plan, n)
	b := c.FrameAt(plan, n)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestCrossfadeBetweenInstructions(t *testing.T) {
	plan := testScenePlan(t, testScene(0), testScene(1))
	c := New(320, 180, 10)

	// Pick a frame in the fade window at the start of scene 1.
	second := plan.Instructions[2]
	frameDur := time.Second / 10
	n := int((second.Start + plan.Crossfade/2) / frameDur)

	blended := c.FrameAt(plan, n)
	require.NotNil(t, blended)

	// The blend must differ from both pure instruction frames.
	t0 := time.Duration(n) * frameDur
	pureA := c.renderInstruction(&plan.Instructions[1], t0)
	pureB := c.renderInstruction(&second, t0)

	assert.NotEqual(t, pureA.Pix, blended.Pix)
	assert.NotEqual(t, pureB.Pix, blended.Pix)
}

func TestIntroFadesFromBlack(t *testing.T) {
	plan := testScenePlan(t, testScene(0))
	c := New(320, 180, 10)

	first := c.FrameAt(plan, 0)
	later := c.FrameAt(plan, 5) // past the fade window at 10fps

	var sumFirst, sumLater int
	for i := 0; i < len(first.Pix); i += 4 {
		sumFirst += int(first.Pix[i]) + int(first.Pix[i+1]) + int(first.Pix[i+2])
		sumLater += int(later.Pix[i]) + int(later.Pix[i+1]) + int(later.Pix[i+2])
	}
	assert.Less(t, sumFirst, sumLater, "frame 0 should be darker than a mid-intro frame")
}

func TestWatermarkOnEveryFrame(t *testing.T) {
	scenes := []models.Scene{testScene(0)}
	plain, err := render.BuildPlan(&models.ScenePlan{
		Title: "Test", IntroText: "intro", OutroText: "outro", Scenes: scenes,
	}, testSettings(), "")
	require.NoError(t, err)

	marked, err := render.BuildPlan(&models.ScenePlan{
		Title: "Test", IntroText: "intro", OutroText: "outro", Scenes: scenes,
		Watermark: &models.VisualAsset{
			Image:          effects.Gradient(64, 64, 1),
			Classification: models.ClassLogo,
		},
	}, testSettings(), "")
	require.NoError(t, err)

	c := New(320, 180, 10)
	n := c.FrameCount(marked) / 2
	assert.NotEqual(t, c.FrameAt(plain, n).Pix, c.FrameAt(marked, n).Pix)
}

func TestLayoutsRender(t *testing.T) {
	cases := []struct {
		name  string
		scene models.Scene
	}{
		{"single", testScene(0, gradientVisual(0, models.ClassPhoto))},
		{"split", testScene(0, gradientVisual(0, models.ClassPhoto), gradientVisual(1, models.ClassPhoto))},
		{"pip", testScene(0, gradientVisual(0, models.ClassPhoto), gradientVisual(1, models.ClassChart))},
		{"carousel", testScene(0, gradientVisual(0, models.ClassPhoto), gradientVisual(1, models.ClassPhoto), gradientVisual(2, models.ClassPhoto))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := testScenePlan(t, tc.scene)
			c := New(320, 180, 10)
			for n := 0; n < c.FrameCount(plan); n += 7 {
				frame := c.FrameAt(plan, n)
				require.NotNil(t, frame)
				assert.Equal(t, 320, frame.Bounds().Dx())
			}
		})
	}
}

func TestCarouselAdvances(t *testing.T) {
	scene := testScene(0,
		gradientVisual(0, models.ClassPhoto),
		gradientVisual(1, models.ClassPhoto),
		gradientVisual(2, models.ClassPhoto),
	)
	plan := testScenePlan(t, scene)
	c := New(320, 180, 10)

	ri := &plan.Instructions[1]
	early := c.renderInstruction(ri, ri.Start)
	late := c.renderInstruction(ri, ri.End-time.Second/10)
	assert.NotEqual(t, early.Pix, late.Pix, "carousel should rotate visuals")
}

func TestBuildAudioTimeline(t *testing.T) {
	plan := testScenePlan(t, testScene(0), testScene(1))
	plan.MusicPath = "music.mp3"

	timeline, err := BuildAudioTimeline(plan)
	require.NoError(t, err)

	// One segment per scene, none for title cards.
	require.Len(t, timeline.Segments, 2)
	assert.Equal(t, "music.mp3", timeline.Music)
	assert.Equal(t, plan.Total, timeline.Total)

	assert.Equal(t, plan.Instructions[1].Start, timeline.Segments[0].Offset)
	assert.Equal(t, plan.Instructions[2].Start, timeline.Segments[1].Offset)
	assert.Less(t, timeline.Segments[0].Offset, timeline.Segments[1].Offset)
}

func TestBuildAudioTimelineRejectsOverflowingAudio(t *testing.T) {
	plan := testScenePlan(t, testScene(0))
	plan.Instructions[1].Audio.Duration = plan.Instructions[1].Duration() + time.Second

	_, err := BuildAudioTimeline(plan)
	require.Error(t, err)
}
