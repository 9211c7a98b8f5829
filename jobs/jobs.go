// Package jobs persists one snapshot per sync run under the output
// root's state directory, as an explicit task handle with a status enum
// and a result slot. A separate poller (or a later `recsync jobs`
// invocation) can observe runs it did not start.
package jobs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"recsync/storage"
	"recsync/syncer"
	"recsync/tracker"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one persisted run snapshot.
type Job struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *syncer.Result `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Store reads and writes job snapshots for one output root.
type Store struct {
	dir string
}

// NewStore creates a job store rooted at <root>/_state/jobs.
func NewStore(root string) *Store {
	return &Store{dir: filepath.Join(root, tracker.StateDirName, "jobs")}
}

// Start persists a new running job of the given kind and returns it.
func (s *Store) Start(kind string) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete marks job completed with its result and persists the snapshot.
func (s *Store) Complete(job *Job, result *syncer.Result) error {
	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	return s.save(job)
}

// Fail marks job failed and persists the snapshot. A partial result, if
// any, is kept alongside the error.
func (s *Store) Fail(job *Job, result *syncer.Result, jobErr error) error {
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Result = result
	job.Error = jobErr.Error()
	return s.save(job)
}

// Get loads one job snapshot by id.
func (s *Store) Get(id string) (*Job, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &storage.StorageError{Op: "read", Path: s.dir, Err: storage.ErrNotFound}
		}
		return nil, &storage.StorageError{Op: "read", Path: s.dir, Err: err}
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, &storage.StorageError{Op: "read", Path: s.dir, Err: storage.ErrStorageCorrupt}
	}
	return &job, nil
}

// List returns all job snapshots, newest first. Unparseable snapshots are
// skipped.
func (s *Store) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &storage.StorageError{Op: "read", Path: s.dir, Err: err}
	}

	var out []*Job
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		job, err := s.Get(e.Name()[:len(e.Name())-len(".json")])
		if err != nil {
			continue
		}
		out = append(out, job)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) save(job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return &storage.StorageError{Op: "write", Path: s.dir, Err: err}
	}
	data = append(data, '\n')
	return storage.WriteFileAtomic(filepath.Join(s.dir, job.ID+".json"), data)
}
