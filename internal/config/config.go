package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database (optional; jobs live in memory when unset)
	DatabaseURL string

	// Redis (optional; progress events stay in-process when unset)
	RedisURL     string
	RedisEnabled bool

	// OpenAI (classification, scripting, TTS)
	OpenAIKey string

	// Gemini (background image generation)
	GeminiKey string

	// ElevenLabs (alternate TTS provider; used when key is set)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Rendering
	FFmpegPath          string
	WorkDir             string // scratch space for audio clips and encoder temp files
	OutputDir           string // final video artifacts
	BackgroundMusicPath string // default background music file, empty = no music
	HardwareEncoding    bool   // try NVENC before falling back to libx264

	// Worker
	MaxConcurrentJobs int
	QueueCapacity     int
	JobTimeoutMinutes int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		WorkerEnabled:       getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:       getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisEnabled:        getEnvBool("REDIS_ENABLED", false),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		GeminiKey:           getEnv("GEMINI_API_KEY", ""),
		ElevenLabsKey:       getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:   getEnv("ELEVENLABS_VOICE_ID", ""),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		WorkDir:             getEnv("WORK_DIR", os.TempDir()),
		OutputDir:           getEnv("OUTPUT_DIR", "output"),
		BackgroundMusicPath: getEnv("BACKGROUND_MUSIC_PATH", ""),
		HardwareEncoding:    getEnvBool("HARDWARE_ENCODING", true),
		MaxConcurrentJobs:   getEnvInt("MAX_CONCURRENT_JOBS", 2),
		QueueCapacity:       getEnvInt("QUEUE_CAPACITY", 32),
		JobTimeoutMinutes:   getEnvInt("JOB_TIMEOUT_MINUTES", 30),
	}

	// Validate required fields
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	if cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	if cfg.QueueCapacity < 1 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
