package ai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"sync"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini / Imagen background generation
// Uses the Google Gen AI SDK to generate scene background images for
// scenes that have no usable document visuals.
// ---------------------------------------------------------------------------

const defaultImagenModel = "imagen-3.0-generate-002"

// GeminiGenerator implements ImageGenerator via Google's Imagen models.
// The underlying client is built once on first use and reused by every
// Generate call.
type GeminiGenerator struct {
	apiKey string
	model  string

	clientOnce sync.Once
	client     *genai.Client
	clientErr  error
}

var _ ImageGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a background image generator. model empty
// defaults to imagen-3.0-generate-002.
func NewGeminiGenerator(apiKey, model string) *GeminiGenerator {
	if model == "" {
		model = defaultImagenModel
	}
	return &GeminiGenerator{
		apiKey: apiKey,
		model:  model,
	}
}

// Generate produces one background image for the prompt. The output is
// decoded in-process so the compositor can consume it directly.
func (s *GeminiGenerator) Generate(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	aspectRatio := nearestAspectRatio(width, height)

	log.Printf("[Gemini] Generating background (model=%s, aspect=%s, promptLen=%d)", s.model, aspectRatio, len(prompt))

	resp, err := client.Models.GenerateImages(ctx, s.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("%w: no image in response", ErrInvalidResponse)
	}

	raw := resp.GeneratedImages[0].Image.ImageBytes
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty image bytes", ErrInvalidResponse)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode generated image: %v", ErrInvalidResponse, err)
	}

	log.Printf("[Gemini] Background generated (%d bytes, %s, %dx%d)",
		len(raw), format, img.Bounds().Dx(), img.Bounds().Dy())

	return img, nil
}

func (s *GeminiGenerator) getClient(ctx context.Context) (*genai.Client, error) {
	s.clientOnce.Do(func() {
		s.client, s.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  s.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return s.client, s.clientErr
}

// nearestAspectRatio maps the target frame to the closest ratio Imagen
// supports.
func nearestAspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "16:9"
	}
	ratio := float64(width) / float64(height)

	candidates := []struct {
		name  string
		value float64
	}{
		{"1:1", 1.0},
		{"3:4", 3.0 / 4.0},
		{"4:3", 4.0 / 3.0},
		{"9:16", 9.0 / 16.0},
		{"16:9", 16.0 / 9.0},
	}

	best := candidates[0]
	bestDiff := ratio - best.value
	if bestDiff < 0 {
		bestDiff = -bestDiff
	}
	for _, c := range candidates[1:] {
		diff := ratio - c.value
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = c, diff
		}
	}
	return best.name
}
