package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/hijabist/internal/constants"
	"github.com/kozaktomas/hijabist/internal/presenter"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// AnalysisJob is one combined analysis run of a visitor.
type AnalysisJob struct {
	EventBroadcaster

	ID          string
	VisitorID   string
	Status      JobStatus
	Progress    int
	Error       string
	ErrorKind   string
	Retryable   bool
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *presenter.ViewModel
}

// GetStatus returns the current job status (implements SSEJob).
func (j *AnalysisJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// JobView is a point-in-time copy of a job for responses.
type JobView struct {
	ID          string               `json:"id"`
	Status      JobStatus            `json:"status"`
	Progress    int                  `json:"progress"`
	Error       string               `json:"error,omitempty"`
	ErrorKind   string               `json:"error_kind,omitempty"`
	Retryable   bool                 `json:"retryable,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Result      *presenter.ViewModel `json:"result,omitempty"`
}

// Snapshot returns a copy of the job fields.
func (j *AnalysisJob) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Error:       j.Error,
		ErrorKind:   j.ErrorKind,
		Retryable:   j.Retryable,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// Cancel cancels the analysis job.
func (j *AnalysisJob) Cancel() {
	j.mu.Lock()
	if isJobTerminal(j.Status) {
		j.mu.Unlock()
		return
	}
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
}

func (j *AnalysisJob) start(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.Status = JobStatusRunning
	j.mu.Unlock()
}

// setProgress records and broadcasts a progress value while running.
func (j *AnalysisJob) setProgress(v int) {
	j.mu.Lock()
	if j.Status != JobStatusRunning || v == j.Progress {
		j.mu.Unlock()
		return
	}
	j.Progress = v
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "progress", Data: map[string]int{"progress": v}})
}

// finish moves the job to a terminal status unless it was cancelled.
func (j *AnalysisJob) finish(status JobStatus, fn func(*AnalysisJob)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if isJobTerminal(j.Status) {
		return false
	}
	j.Status = status
	now := time.Now()
	j.CompletedAt = &now
	fn(j)
	return true
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Analysis cancelled"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs. Finished jobs are kept for JobRetention.
type JobManager struct {
	jobs map[string]*AnalysisJob
	mu   sync.RWMutex
	now  func() time.Time
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*AnalysisJob),
		now:  time.Now,
	}
}

// CreateJob creates a pending job for a visitor and drops expired ones.
func (m *JobManager) CreateJob(id, visitorID string) *AnalysisJob {
	job := &AnalysisJob{
		ID:        id,
		VisitorID: visitorID,
		Status:    JobStatusPending,
		StartedAt: m.now(),
	}

	m.mu.Lock()
	m.pruneLocked()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *AnalysisJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// GetVisitorJob retrieves a job by ID if it belongs to the visitor.
func (m *JobManager) GetVisitorJob(id, visitorID string) *AnalysisJob {
	job := m.GetJob(id)
	if job == nil || job.VisitorID != visitorID {
		return nil
	}
	return job
}

// Len returns the number of tracked jobs.
func (m *JobManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

func (m *JobManager) pruneLocked() {
	cutoff := m.now().Add(-constants.JobRetention)
	for id, job := range m.jobs {
		snap := job.Snapshot()
		if isJobTerminal(snap.Status) && snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
