package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"docuvid/internal/models"
)

const (
	openAIScriptModel   = "gpt-5-mini" // best for reasoning and cost efficiency
	openAIClassifyModel = "gpt-5-mini"
)

// OpenAIClient implements Classifier, ScriptWriter, and Voicer on top of
// the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
}

var (
	_ Classifier   = (*OpenAIClient)(nil)
	_ ScriptWriter = (*OpenAIClient)(nil)
	_ Voicer       = (*OpenAIClient)(nil)
)

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
	}
}

// ---------------------------------------------------------------------------
// Classifier
// ---------------------------------------------------------------------------

var validClassifications = map[models.Classification]bool{
	models.ClassChart:      true,
	models.ClassDiagram:    true,
	models.ClassTable:      true,
	models.ClassPhoto:      true,
	models.ClassLogo:       true,
	models.ClassDecorative: true,
}

const classifySystemPrompt = `You classify a single image extracted from a document.
Reply with exactly one lowercase word from this list and nothing else:
chart, diagram, table, photo, logo, decorative.

- chart: bar/line/pie charts, plots, graphs with axes or data series
- diagram: flowcharts, architecture sketches, schematics, annotated figures
- table: tabular data rendered as an image
- photo: photographs or photorealistic illustrations
- logo: brand marks, small emblems, company logos
- decorative: borders, dividers, backgrounds, icons with no informational content`

// Classify sends the image to the vision model and maps the one-word reply
// to a classification tag.
func (c *OpenAIClient) Classify(ctx context.Context, img image.Image, ref string) (models.Classification, error) {
	dataURL, err := encodeImageDataURL(img)
	if err != nil {
		return "", fmt.Errorf("failed to encode image %s: %w", ref, err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openAIClassifyModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: classifySystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: fmt.Sprintf("Classify this image (source: %s).", ref),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	answer := models.Classification(strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content)))
	if !validClassifications[answer] {
		return "", fmt.Errorf("%w: unknown classification %q for %s", ErrInvalidResponse, answer, ref)
	}

	return answer, nil
}

func encodeImageDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ---------------------------------------------------------------------------
// ScriptWriter
// ---------------------------------------------------------------------------

const scriptSystemPrompt = `You are a narrator turning document content into a voiceover script for a video.

You receive the document title and its sections in order. Write one narration scene per section, keeping the section order. Never merge, drop, or reorder sections.

Narration style:
- Write to be LISTENED to, not read. Short, punchy sentences. Use contractions.
- Each scene is 2-4 sentences: enough to carry the section's key point, never a wall of text.
- Connect scenes with narrative momentum. The listener should never feel a jarring shift.
- When a section has a chart, diagram, or table, narrate what it shows, not that it exists.

For each scene also write background_prompt: a short visual description for an AI-generated background image matching the narration. Keep it abstract and atmospheric.

Also produce:
- title: a short display title for the video
- intro: one sentence shown on the opening title card
- outro: one short closing line shown on the final card
- mood: one or two words describing the overall tone

ALL FIELDS ARE REQUIRED. Respond with JSON:
{"title": "...", "intro": "...", "outro": "...", "mood": "...",
 "scenes": [{"index": 0, "narration": "...", "background_prompt": "..."}]}`

// WriteScript generates the narration script via JSON-mode chat completion.
func (c *OpenAIClient) WriteScript(ctx context.Context, title string, inputs []models.SceneInput) (*Script, error) {
	userPrompt := buildScriptUserPrompt(title, inputs)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openAIScriptModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: scriptSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content
	const maxLogLen = 2000

	var script Script
	if err := json.Unmarshal([]byte(rawContent), &script); err != nil {
		log.Printf("[OpenAI script] parse failed: %v", err)
		if len(rawContent) > maxLogLen {
			log.Printf("[OpenAI script] raw response (truncated): %s...", rawContent[:maxLogLen])
		} else {
			log.Printf("[OpenAI script] raw response: %s", rawContent)
		}
		return nil, fmt.Errorf("%w: failed to parse script: %v", ErrInvalidResponse, err)
	}

	log.Printf("[OpenAI script] script generated: %d scenes, title=%q, mood=%q",
		len(script.Scenes), script.Title, script.Mood)

	return &script, nil
}

func buildScriptUserPrompt(title string, inputs []models.SceneInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document title: %q\n\nSections (%d total):\n", title, len(inputs))
	for _, in := range inputs {
		fmt.Fprintf(&b, "\n--- Section %d", in.Index)
		if tag := in.Classification(); tag != models.ClassNone {
			fmt.Fprintf(&b, " (contains a %s)", tag)
		}
		fmt.Fprintf(&b, " ---\n%s\n", in.Text)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Voicer
// ---------------------------------------------------------------------------

// narrationSpeed slows delivery slightly for clear narration.
const narrationSpeed = 0.95

// Synthesize converts narration text to MP3 via the OpenAI TTS endpoint.
// The returned duration is an estimate; the caller probes the real length.
func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error) {
	if voice == "" {
		voice = string(openai.VoiceOnyx)
	}

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1HD,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          narrationSpeed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: openai tts returned empty audio", ErrInvalidResponse)
	}

	log.Printf("[OpenAI TTS] Speech generated (voice=%s, textLen=%d, %d bytes)", voice, len(text), len(audioData))

	return &SpeechResult{
		AudioData: audioData,
		Format:    "mp3",
		Duration:  estimateSpeechDuration(text, narrationSpeed),
	}, nil
}
