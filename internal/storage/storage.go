// Package storage manages the local artifact directories: a scratch work
// dir for intermediate assets (voiceover clips, encoder temp files) and
// an output dir for finished videos.
package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Storage struct {
	workDir   string
	outputDir string
}

// New prepares both directories. Scratch artifacts are namespaced by job
// ID so one job's cleanup never touches another's files.
func New(workDir, outputDir string) (*Storage, error) {
	for _, dir := range []string{workDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Storage{workDir: workDir, outputDir: outputDir}, nil
}

// WorkDir is the scratch directory shared by all jobs. Files written here
// must be prefixed with the owning job's ID.
func (s *Storage) WorkDir() string {
	return s.workDir
}

// OutputPath is the final location of a job's rendered video.
func (s *Storage) OutputPath(jobID uuid.UUID) string {
	return filepath.Join(s.outputDir, jobID.String()+".mp4")
}

// CleanupJob removes every scratch artifact belonging to a job. Outputs
// are untouched.
func (s *Storage) CleanupJob(jobID uuid.UUID) {
	pattern := filepath.Join(s.workDir, jobID.String()+"_*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		log.Printf("[Storage] Cleanup glob failed for job %s: %v", jobID, err)
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			log.Printf("[Storage] Failed to remove %s: %v", path, err)
		}
	}
	if len(matches) > 0 {
		log.Printf("[Storage] Cleaned up %d scratch files for job %s", len(matches), jobID)
	}
}

// RemoveOutput deletes a job's rendered video, used when a job fails or
// is cancelled after the encoder already wrote the file.
func (s *Storage) RemoveOutput(jobID uuid.UUID) {
	path := s.OutputPath(jobID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Storage] Failed to remove output %s: %v", path, err)
	}
}
