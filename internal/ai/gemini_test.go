package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestAspectRatio(t *testing.T) {
	cases := []struct {
		width, height int
		want          string
	}{
		{1920, 1080, "16:9"},
		{1080, 1920, "9:16"},
		{1024, 1024, "1:1"},
		{1600, 1200, "4:3"},
		{900, 1200, "3:4"},
		{0, 1080, "16:9"},
		{1920, 0, "16:9"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, nearestAspectRatio(c.width, c.height), "%dx%d", c.width, c.height)
	}
}

func TestGeminiClientBuiltOnce(t *testing.T) {
	gen := NewGeminiGenerator("test-key", "")

	first, err := gen.getClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := gen.getClient(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGeminiGeneratorDefaultsModel(t *testing.T) {
	gen := NewGeminiGenerator("test-key", "")
	assert.Equal(t, defaultImagenModel, gen.model)

	gen = NewGeminiGenerator("test-key", "imagen-4.0-generate-001")
	assert.Equal(t, "imagen-4.0-generate-001", gen.model)
}
