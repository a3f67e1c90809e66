package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"docuvid/internal/models"
)

// ErrTerminal is returned when a transition is attempted on a finished job.
var ErrTerminal = errors.New("job is in a terminal state")

// Publisher receives progress events emitted by a machine. Both the
// broadcaster and the Redis sink satisfy it.
type Publisher interface {
	Publish(event models.ProgressEvent)
}

// Machine owns the lifecycle of a single job. All mutations of the job
// record go through it, so transitions stay valid and progress stays
// monotonic even with concurrent readers.
type Machine struct {
	mu  sync.Mutex
	job *models.Job
	pub Publisher
}

// NewMachine wraps a pending job. pub may be nil for tests.
func NewMachine(job *models.Job, pub Publisher) *Machine {
	return &Machine{job: job, pub: pub}
}

// Transition validates and applies one state machine edge, stamping
// StartedAt on leaving pending and CompletedAt on entering a terminal
// state. Each applied transition is published.
func (m *Machine) Transition(to models.JobStatus) error {
	m.mu.Lock()

	from := m.job.Status
	if from.IsTerminal() {
		m.mu.Unlock()
		return ErrTerminal
	}
	if !isValidTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}

	now := time.Now().UTC()
	if from == models.JobStatusPending {
		m.job.StartedAt = &now
	}
	if to.IsTerminal() {
		m.job.CompletedAt = &now
	}
	if to == models.JobStatusCompleted {
		m.job.Progress = 1.0
	}
	m.job.Status = to

	event := m.eventLocked()
	m.mu.Unlock()

	m.publish(event)
	return nil
}

// SetProgress records intra-stage progress. Values are clamped to [0, 1]
// and never move backwards; regressions are dropped silently.
func (m *Machine) SetProgress(step string, progress float64) {
	m.mu.Lock()

	if m.job.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	if progress < m.job.Progress {
		progress = m.job.Progress
	}
	m.job.Progress = progress
	m.job.CurrentStep = step

	event := m.eventLocked()
	m.mu.Unlock()

	m.publish(event)
}

// Fail moves the job to failed with a structured error. Calling Fail on a
// terminal job is a no-op so late pipeline errors cannot clobber a
// cancellation.
func (m *Machine) Fail(kind models.ErrorKind, msg string) {
	m.mu.Lock()

	if m.job.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	m.job.Status = models.JobStatusFailed
	m.job.Error = &models.JobError{Kind: kind, Message: msg}
	m.job.CompletedAt = &now

	event := m.eventLocked()
	m.mu.Unlock()

	m.publish(event)
}

// Cancel moves the job to cancelled. No-op on terminal jobs, so a cancel
// racing with completion keeps the completed result.
func (m *Machine) Cancel() {
	m.mu.Lock()

	if m.job.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	m.job.Status = models.JobStatusCancelled
	m.job.CompletedAt = &now

	event := m.eventLocked()
	m.mu.Unlock()

	m.publish(event)
}

// Complete records the output artifact and moves the job to completed.
// When the transition is rejected (a cancel won the race) the output is
// not recorded: the caller removes the file, so a descriptor pointing at
// it would dangle.
func (m *Machine) Complete(out models.OutputDescriptor) error {
	m.mu.Lock()
	prev := m.job.Output
	m.job.Output = &out
	m.mu.Unlock()

	if err := m.Transition(models.JobStatusCompleted); err != nil {
		m.mu.Lock()
		m.job.Output = prev
		m.mu.Unlock()
		return err
	}
	return nil
}

// Snapshot returns a copy of the job record.
func (m *Machine) Snapshot() models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.job
}

func (m *Machine) eventLocked() models.ProgressEvent {
	return models.ProgressEvent{
		JobID:    m.job.ID,
		Status:   m.job.Status,
		Step:     m.job.CurrentStep,
		Progress: m.job.Progress,
	}
}

func (m *Machine) publish(event models.ProgressEvent) {
	if m.pub != nil {
		m.pub.Publish(event)
	}
}

// isValidTransition enforces the allowed job state machine edges. Any
// active state may fail or be cancelled; backgrounds is optional between
// voiceover and composing.
func isValidTransition(from, to models.JobStatus) bool {
	if to == models.JobStatusFailed || to == models.JobStatusCancelled {
		return !from.IsTerminal()
	}
	switch from {
	case models.JobStatusPending:
		return to == models.JobStatusClassifying
	case models.JobStatusClassifying:
		return to == models.JobStatusScripting
	case models.JobStatusScripting:
		return to == models.JobStatusVoiceover
	case models.JobStatusVoiceover:
		return to == models.JobStatusBackgrounds || to == models.JobStatusComposing
	case models.JobStatusBackgrounds:
		return to == models.JobStatusComposing
	case models.JobStatusComposing:
		return to == models.JobStatusExporting
	case models.JobStatusExporting:
		return to == models.JobStatusCompleted
	default:
		return false
	}
}
