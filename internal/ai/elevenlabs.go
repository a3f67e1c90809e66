package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech
// Alternate Voicer, used instead of OpenAI TTS when an ElevenLabs API key
// is configured. Model: eleven_flash_v2_5 (fast, 32 languages).
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB"
	elevenLabsOutputFormat = "mp3_44100_128"

	// elevenLabsSpeed slows delivery slightly for clear narration.
	elevenLabsSpeed = 0.9
)

// ElevenLabsVoicer handles text-to-speech via the ElevenLabs API.
type ElevenLabsVoicer struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

var _ Voicer = (*ElevenLabsVoicer)(nil)

// NewElevenLabsVoicer creates an ElevenLabs voicer. voiceID is the
// account-level default; empty falls back to the stock narration voice.
func NewElevenLabsVoicer(apiKey, voiceID string) *ElevenLabsVoicer {
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoice
	}
	return &ElevenLabsVoicer{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: elevenLabsDefaultModel,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
	Speed         *float64                 `json:"speed,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// Synthesize converts narration text to speech. The job-level voice name
// is an OpenAI voice alias, so it is ignored here; the configured
// ElevenLabs voice ID wins.
func (s *ElevenLabsVoicer) Synthesize(ctx context.Context, text, voice string) (*SpeechResult, error) {
	speed := elevenLabsSpeed
	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		Speed:   &speed,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.60, // moderate stability, allows some emotional range
			SimilarityBoost: 0.80, // high voice consistency
			Style:           0.35, // mild style exaggeration for natural delivery
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		elevenLabsBaseURL, s.voiceID, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Printf("[ElevenLabs] Generating speech (voiceID=%s, model=%s, textLen=%d, speed=%.2f)",
		s.voiceID, s.modelID, len(text), speed)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	// The response body IS the audio file.
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: ElevenLabs returned empty audio", ErrInvalidResponse)
	}

	duration := estimateSpeechDuration(text, speed)
	log.Printf("[ElevenLabs] Speech generated (%d bytes, estimated %v)", len(audioData), duration)

	return &SpeechResult{
		AudioData: audioData,
		Format:    "mp3",
		Duration:  duration,
	}, nil
}

// estimateSpeechDuration estimates narration length from word count.
// Average narration pace is ~140 words per minute at normal speed.
func estimateSpeechDuration(text string, speed float64) time.Duration {
	words := len(bytes.Fields([]byte(text)))
	baseWPM := 140.0
	actualWPM := baseWPM * speed
	if actualWPM <= 0 {
		actualWPM = baseWPM
	}
	minutes := float64(words) / actualWPM
	return time.Duration(minutes * float64(time.Minute))
}
