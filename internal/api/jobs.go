package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/jatspkg/core/convert"
	"github.com/FocuswithJustin/jatspkg/core/errors"
)

// JobStatus is the state of a conversion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Done reports whether the status is final.
func (s JobStatus) Done() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// StageUnpack is the upload-unpacking stage that precedes conversion.
const StageUnpack = "unpack"

// stageProgress maps stages to a rough percentage.
var stageProgress = map[string]int{
	StageUnpack:            5,
	convert.StageParse:     15,
	convert.StageExtract:   25,
	convert.StageNormalize: 40,
	convert.StageMatch:     55,
	convert.StageProbe:     65,
	convert.StageRender:    80,
	convert.StageDone:      95,
}

// JobResult summarizes a finished conversion.
type JobResult struct {
	ConversionID string `json:"conversion_id"`
	Package      string `json:"package"`
	DOI          string `json:"doi,omitempty"`
	Resources    int    `json:"resources"`
}

// Job is an asynchronous conversion of one uploaded bundle.
type Job struct {
	ID          string     `json:"id"`
	ArticleID   string     `json:"article_id"`
	Status      JobStatus  `json:"status"`
	Stage       string     `json:"stage,omitempty"`
	Progress    int        `json:"progress"`
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	CompletedAt string     `json:"completed_at,omitempty"`

	dir    string
	cancel context.CancelFunc
}

// JobStore keeps jobs in memory.
type JobStore struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewJobStore creates an empty store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Create registers a pending job for articleID whose files live under dir
// and returns a copy of it with the job's context.
func (s *JobStore) Create(parent context.Context, articleID string, dirFor func(id string) string) (Job, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	t := now()
	job := &Job{
		ID:        id,
		ArticleID: articleID,
		Status:    JobStatusPending,
		CreatedAt: t,
		UpdatedAt: t,
		dir:       dirFor(id),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	return *job, ctx
}

// Get returns a copy of the job.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns copies of all jobs, oldest first.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// update applies fn to a job that is not yet final. It returns the
// updated copy and false if the job is unknown or already final.
func (s *JobStore) update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Done() {
		return Job{}, false
	}
	fn(job)
	job.UpdatedAt = now()
	if job.Status.Done() {
		job.CompletedAt = job.UpdatedAt
		job.cancel()
	}
	return *job, true
}

// Stage marks the job running at stage.
func (s *JobStore) Stage(id, stage string) (Job, bool) {
	return s.update(id, func(j *Job) {
		j.Status = JobStatusRunning
		j.Stage = stage
		if p, ok := stageProgress[stage]; ok {
			j.Progress = p
		}
	})
}

// Complete marks the job completed.
func (s *JobStore) Complete(id string, res *JobResult) (Job, bool) {
	return s.update(id, func(j *Job) {
		j.Status = JobStatusCompleted
		j.Progress = 100
		j.Result = res
	})
}

// Fail marks the job failed.
func (s *JobStore) Fail(id string, err error) (Job, bool) {
	return s.update(id, func(j *Job) {
		j.Status = JobStatusFailed
		j.Error = err.Error()
		j.ErrorCode = errors.Code(err)
	})
}

// Cancel cancels a pending or running job.
func (s *JobStore) Cancel(id string) (Job, error) {
	s.mu.RLock()
	_, exists := s.jobs[id]
	s.mu.RUnlock()
	if !exists {
		return Job{}, errors.NewNotFound("job", id)
	}
	job, ok := s.update(id, func(j *Job) {
		j.Status = JobStatusCancelled
		j.Error = "cancelled"
	})
	if !ok {
		return Job{}, errors.NewValidation("status", "job already finished")
	}
	return job, nil
}

// Remove deletes a finished job from the store and returns its directory.
func (s *JobStore) Remove(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return "", errors.NewNotFound("job", id)
	}
	if !job.Status.Done() {
		return "", errors.NewValidation("status", "job still running")
	}
	delete(s.jobs, id)
	return job.dir, nil
}

type jobKey struct{}

func withJob(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobKey{}, id)
}

func jobFrom(ctx context.Context) string {
	id, _ := ctx.Value(jobKey{}).(string)
	return id
}
