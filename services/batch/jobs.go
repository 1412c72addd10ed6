package batch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamrelay/models"
)

// JobStatus is the lifecycle state of a background batch.
type JobStatus string

const (
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// JobSnapshot is the externally visible state of a job.
type JobSnapshot struct {
	ID            string              `json:"jobId"`
	SeriesSession string              `json:"series"`
	Mode          models.BatchMode    `json:"mode"`
	Trigger       models.Trigger      `json:"trigger"`
	Status        JobStatus           `json:"status"`
	Progress      float64             `json:"progress"`
	Message       string              `json:"message"`
	Entries       []models.BatchEntry `json:"entries"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	FinishedAt    *time.Time          `json:"finishedAt,omitempty"`
}

type job struct {
	snap   JobSnapshot
	done   chan struct{}
	cancel context.CancelFunc
}

// Runner executes one batch, reporting through hooks.
type Runner func(ctx context.Context, hooks Hooks) ([]models.BatchEntry, error)

// Jobs runs batches in the background and keeps their state for polling.
// Finished jobs are removed after the retention period.
type Jobs struct {
	mu        sync.RWMutex
	jobs      map[string]*job
	retention time.Duration
	now       func() time.Time
}

func NewJobs(retention time.Duration) *Jobs {
	return &Jobs{
		jobs:      make(map[string]*job),
		retention: retention,
		now:       time.Now,
	}
}

// StartCleanup purges expired jobs every interval until ctx is done.
func (j *Jobs) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Start launches run under a new job id. The job gets its own context so it
// outlives the request that created it.
func (j *Jobs) Start(req Request, run Runner) JobSnapshot {
	ctx, cancel := context.WithCancel(context.Background())
	jb := &job{
		snap: JobSnapshot{
			ID:            uuid.NewString(),
			SeriesSession: req.SeriesSession,
			Mode:          req.Mode,
			Trigger:       req.Trigger,
			Status:        JobRunning,
			Entries:       []models.BatchEntry{},
			CreatedAt:     j.now(),
		},
		done:   make(chan struct{}),
		cancel: cancel,
	}

	j.mu.Lock()
	j.jobs[jb.snap.ID] = jb
	snap := jb.snap
	j.mu.Unlock()

	log.Printf("[batch] started job %s series=%s mode=%s", snap.ID, req.SeriesSession, req.Mode)

	hooks := Hooks{
		OnProgress: func(p float64) { j.update(jb, func(s *JobSnapshot) { s.Progress = p }) },
		OnStatus:   func(m string) { j.update(jb, func(s *JobSnapshot) { s.Message = m }) },
		OnEntry: func(e models.BatchEntry) {
			j.update(jb, func(s *JobSnapshot) { s.Entries = append(s.Entries, e) })
		},
	}

	go func() {
		defer close(jb.done)
		defer cancel()
		entries, err := run(ctx, hooks)
		finished := j.now()
		j.update(jb, func(s *JobSnapshot) {
			// The runner's slice is authoritative.
			if entries != nil {
				s.Entries = entries
			}
			s.FinishedAt = &finished
			if err != nil {
				s.Status = JobFailed
				s.Error = err.Error()
				return
			}
			s.Status = JobComplete
		})
		if err != nil {
			log.Printf("[batch] job %s failed after %d entries: %v", snap.ID, len(entries), err)
			return
		}
		log.Printf("[batch] job %s complete with %d entries", snap.ID, len(entries))
	}()

	return snap
}

func (j *Jobs) update(jb *job, fn func(*JobSnapshot)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&jb.snap)
}

// Get returns a copy of the job state.
func (j *Jobs) Get(id string) (JobSnapshot, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	jb, ok := j.jobs[id]
	if !ok {
		return JobSnapshot{}, false
	}
	snap := jb.snap
	snap.Entries = make([]models.BatchEntry, len(jb.snap.Entries))
	copy(snap.Entries, jb.snap.Entries)
	return snap, true
}

// Done returns a channel closed when the job finishes.
func (j *Jobs) Done(id string) (<-chan struct{}, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	jb, ok := j.jobs[id]
	if !ok {
		return nil, false
	}
	return jb.done, true
}

// Cancel stops a running job. Calls already issued are left to finish.
func (j *Jobs) Cancel(id string) bool {
	j.mu.RLock()
	jb, ok := j.jobs[id]
	j.mu.RUnlock()
	if !ok {
		return false
	}
	jb.cancel()
	return true
}

func (j *Jobs) cleanup() {
	if j.retention <= 0 {
		return
	}
	cutoff := j.now().Add(-j.retention)

	j.mu.Lock()
	defer j.mu.Unlock()
	for id, jb := range j.jobs {
		if jb.snap.FinishedAt != nil && jb.snap.FinishedAt.Before(cutoff) {
			delete(j.jobs, id)
			log.Printf("[batch] expired job %s", id)
		}
	}
}
