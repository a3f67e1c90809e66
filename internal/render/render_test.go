package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuvid/internal/models"
)

func scene(index int, audio time.Duration, visuals ...models.VisualAsset) models.Scene {
	return models.Scene{
		Index:     index,
		Narration: "The first quarter closed well above forecast. Margins held steady.",
		Audio:     models.AudioAsset{Path: "scene.mp3", Duration: audio},
		Visuals:   visuals,
	}
}

func docVisual(c models.Classification) models.VisualAsset {
	return models.VisualAsset{Source: models.VisualSourceDocument, Classification: c}
}

func planOf(scenes ...models.Scene) *models.ScenePlan {
	return &models.ScenePlan{
		Title:     "Quarterly Report",
		IntroText: "A look at the quarter",
		OutroText: "Thanks for watching",
		Scenes:    scenes,
	}
}

func TestBuildPlanStructure(t *testing.T) {
	p := planOf(
		scene(0, 6*time.Second, docVisual(models.ClassPhoto)),
		scene(1, 8*time.Second, docVisual(models.ClassPhoto)),
	)

	out, err := BuildPlan(p, models.DefaultSettings(), "music.mp3")
	require.NoError(t, err)

	// Intro + two scenes + outro.
	require.Len(t, out.Instructions, 4)
	assert.Equal(t, models.InstructionTitle, out.Instructions[0].Kind)
	assert.Equal(t, models.InstructionScene, out.Instructions[1].Kind)
	assert.Equal(t, models.InstructionScene, out.Instructions[2].Kind)
	assert.Equal(t, models.InstructionTitle, out.Instructions[3].Kind)

	assert.True(t, out.Instructions[0].FadeIn, "intro fades in")
	assert.True(t, out.Instructions[3].FadeOut, "outro fades out")
	assert.Equal(t, "music.mp3", out.MusicPath)

	// Distinct seeds keep the intro and outro cards from sharing a palette.
	assert.NotEqual(t, out.Instructions[0].SceneIndex, out.Instructions[3].SceneIndex)
}

func TestBuildPlanTimingInvariants(t *testing.T) {
	p := planOf(
		scene(0, 6*time.Second, docVisual(models.ClassPhoto)),
		scene(1, 9*time.Second, docVisual(models.ClassChart)),
		scene(2, 5*time.Second),
	)

	out, err := BuildPlan(p, models.DefaultSettings(), "")
	require.NoError(t, err)

	// Instructions are contiguous: the first starts at zero, each one
	// starts exactly where its predecessor ends, and the last ends at
	// Total.
	assert.Equal(t, time.Duration(0), out.Instructions[0].Start)
	for i := 1; i < len(out.Instructions); i++ {
		assert.Equal(t, out.Instructions[i-1].End, out.Instructions[i].Start,
			"instruction %d start", i)
		assert.Greater(t, out.Instructions[i].End, out.Instructions[i].Start,
			"instruction %d span", i)
	}
	assert.Equal(t, out.Instructions[len(out.Instructions)-1].End, out.Total)

	// The durations sum to the total exactly; the crossfade never
	// stretches the timeline.
	var sum time.Duration
	for _, ri := range out.Instructions {
		sum += ri.Duration()
	}
	assert.Equal(t, out.Total, sum)
	frame := time.Second / time.Duration(models.DefaultSettings().FPS)
	assert.LessOrEqual(t, absDuration(sum-out.Total), frame)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func TestBuildPlanDurationPolicy(t *testing.T) {
	short := scene(0, 1500*time.Millisecond, docVisual(models.ClassPhoto))
	chart := scene(1, 6*time.Second, docVisual(models.ClassChart))
	chart.Classification = models.ClassChart

	out, err := BuildPlan(planOf(short, chart), models.DefaultSettings(), "")
	require.NoError(t, err)

	// Short narration is floored at the minimum scene duration.
	assert.Equal(t, MinSceneDuration, out.Instructions[1].Duration())

	// Data visuals hold longer than their narration.
	assert.Equal(t, 6*time.Second+HoldExtra, out.Instructions[2].Duration())
}

func TestBuildPlanLayoutPolicy(t *testing.T) {
	cases := []struct {
		name    string
		visuals []models.VisualAsset
		want    models.Layout
	}{
		{"no visuals", nil, models.LayoutSingle},
		{"one photo", []models.VisualAsset{docVisual(models.ClassPhoto)}, models.LayoutSingle},
		{"two photos", []models.VisualAsset{docVisual(models.ClassPhoto), docVisual(models.ClassPhoto)}, models.LayoutSplit},
		{"chart plus photo", []models.VisualAsset{docVisual(models.ClassChart), docVisual(models.ClassPhoto)}, models.LayoutPiP},
		{"photo plus table", []models.VisualAsset{docVisual(models.ClassPhoto), docVisual(models.ClassTable)}, models.LayoutPiP},
		{"two charts", []models.VisualAsset{docVisual(models.ClassChart), docVisual(models.ClassChart)}, models.LayoutSplit},
		{"three visuals", []models.VisualAsset{docVisual(models.ClassPhoto), docVisual(models.ClassPhoto), docVisual(models.ClassChart)}, models.LayoutCarousel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := BuildPlan(planOf(scene(0, 5*time.Second, tc.visuals...)), models.DefaultSettings(), "")
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Instructions[1].Layout)
		})
	}
}

func TestBuildPlanLayoutHintWins(t *testing.T) {
	s := scene(0, 5*time.Second, docVisual(models.ClassPhoto), docVisual(models.ClassPhoto))
	s.LayoutHint = models.LayoutCarousel

	out, err := BuildPlan(planOf(s), models.DefaultSettings(), "")
	require.NoError(t, err)
	assert.Equal(t, models.LayoutCarousel, out.Instructions[1].Layout)
}

func TestBuildPlanScenesKeepOrder(t *testing.T) {
	p := planOf(
		scene(0, 5*time.Second),
		scene(1, 5*time.Second),
		scene(2, 5*time.Second),
	)

	out, err := BuildPlan(p, models.DefaultSettings(), "")
	require.NoError(t, err)

	for i, ri := range out.Instructions[1 : len(out.Instructions)-1] {
		assert.Equal(t, i, ri.SceneIndex)
	}
}

func TestBuildPlanEffectsDeterministic(t *testing.T) {
	p := planOf(scene(0, 5*time.Second), scene(1, 5*time.Second))

	a, err := BuildPlan(p, models.DefaultSettings(), "")
	require.NoError(t, err)
	b, err := BuildPlan(p, models.DefaultSettings(), "")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Zoom direction alternates between consecutive scenes.
	e0 := a.Instructions[1].Effect
	e1 := a.Instructions[2].Effect
	assert.NotEqual(t, e0.ZoomStart, e1.ZoomStart)
}

func TestBuildPlanOverlayPolicy(t *testing.T) {
	withDoc := scene(0, 5*time.Second, docVisual(models.ClassPhoto))
	generated := scene(1, 5*time.Second, models.VisualAsset{Source: models.VisualSourceGenerated})

	out, err := BuildPlan(planOf(withDoc, generated), models.DefaultSettings(), "")
	require.NoError(t, err)

	assert.Empty(t, out.Instructions[1].Overlay, "document visual carries the content")
	assert.NotEmpty(t, out.Instructions[2].Overlay, "generated background gets a narration excerpt")
	assert.LessOrEqual(t, len(out.Instructions[2].Overlay), overlayMaxChars+3)
}

func TestBuildPlanCalloutPolicy(t *testing.T) {
	chart := scene(0, 5*time.Second, docVisual(models.ClassChart))
	chart.Classification = models.ClassChart
	photo := scene(1, 5*time.Second, docVisual(models.ClassPhoto))
	photo.Classification = models.ClassPhoto

	out, err := BuildPlan(planOf(chart, photo), models.DefaultSettings(), "")
	require.NoError(t, err)

	assert.Equal(t, "Chart", out.Instructions[1].Callout)
	assert.Empty(t, out.Instructions[2].Callout)
}

func TestBuildPlanFrameAlignment(t *testing.T) {
	p := planOf(scene(0, 5123*time.Millisecond))
	settings := models.DefaultSettings()
	settings.FPS = 30

	out, err := BuildPlan(p, settings, "")
	require.NoError(t, err)

	frame := time.Second / 30
	for i, ri := range out.Instructions {
		assert.Zero(t, ri.Duration()%frame, "instruction %d duration is not frame aligned", i)
	}
}

func TestBuildPlanRejectsOverlongPlan(t *testing.T) {
	var scenes []models.Scene
	for i := 0; i < 200; i++ {
		scenes = append(scenes, scene(i, 10*time.Minute))
	}

	_, err := BuildPlan(planOf(scenes...), models.DefaultSettings(), "")
	require.ErrorIs(t, err, ErrPlanTooLong)
}

func TestBuildPlanEmpty(t *testing.T) {
	_, err := BuildPlan(planOf(), models.DefaultSettings(), "")
	require.Error(t, err)
	_, err = BuildPlan(nil, models.DefaultSettings(), "")
	require.Error(t, err)
}
