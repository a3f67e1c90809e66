package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docuvid/internal/ai"
	"docuvid/internal/api"
	"docuvid/internal/config"
	"docuvid/internal/encoder"
	"docuvid/internal/events"
	"docuvid/internal/jobs"
	"docuvid/internal/scheduler"
	"docuvid/internal/storage"
	"docuvid/internal/store"
	"docuvid/internal/worker"
)

func main() {
	log.Println("Starting docuvid...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Job store: Postgres when configured, otherwise in-memory
	var jobStore store.JobStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		jobStore = pg
		log.Println("Connected to database")
	} else {
		jobStore = store.NewMemoryStore()
		log.Println("Using in-memory job store")
	}

	artifacts, err := storage.New(cfg.WorkDir, cfg.OutputDir)
	if err != nil {
		log.Fatalf("Failed to prepare artifact directories: %v", err)
	}

	broadcaster := jobs.NewBroadcaster()
	defer broadcaster.Close()

	// Optional Redis sink for external progress observers
	if cfg.RedisEnabled && cfg.RedisURL != "" {
		sink, err := events.NewRedisSink(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer sink.Close()
		broadcaster.AttachSink(sink)
		log.Println("Redis progress sink enabled")
	}

	enc := encoder.New(cfg.FFmpegPath, cfg.WorkDir, cfg.HardwareEncoding)

	// AI capabilities: OpenAI covers classification, scripting and TTS;
	// ElevenLabs takes over TTS when its key is set
	openaiClient := ai.NewOpenAIClient(cfg.OpenAIKey)
	var voicer ai.Voicer = openaiClient
	if cfg.ElevenLabsKey != "" {
		voicer = ai.NewElevenLabsVoicer(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		log.Printf("TTS provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
	} else {
		log.Println("TTS provider: OpenAI")
	}

	var images ai.ImageGenerator
	if cfg.GeminiKey != "" {
		images = ai.NewGeminiGenerator(cfg.GeminiKey, "")
		log.Println("Background generation: Gemini")
	} else {
		log.Println("Background generation disabled, scenes fall back to gradients")
	}

	orchestrator := ai.NewOrchestrator(openaiClient, openaiClient, voicer, images, enc, cfg.WorkDir)
	pipeline := worker.New(jobStore, broadcaster, orchestrator, enc, artifacts)

	sched := scheduler.New(
		cfg.MaxConcurrentJobs,
		cfg.QueueCapacity,
		time.Duration(cfg.JobTimeoutMinutes)*time.Minute,
		pipeline.Run,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.WorkerEnabled {
		sched.Start(workerCtx)
	} else {
		log.Println("Worker disabled, jobs will queue but not run")
	}

	handler := api.NewHandler(jobStore, sched, broadcaster, cfg.BackgroundMusicPath)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let running jobs finish within the grace period, then cut them off.
	if cfg.WorkerEnabled {
		if err := sched.Shutdown(ctx); err != nil {
			log.Printf("Scheduler shutdown incomplete, cancelling remaining jobs: %v", err)
			workerCancel()
		}
	}

	log.Println("Exited")
}
