package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JSONStore keeps report jobs in memory and rewrites one JSON file on every
// write. Rows are stored inline, so it suits small datasets.
type JSONStore struct {
	path string
	jobs map[string]*Job // indexed by report_id
	mu   sync.RWMutex
}

// jsonPersistence is the on-disk format for the JSON store.
type jsonPersistence struct {
	Reports []*Job `json:"reports"`
}

// NewJSONStore creates a new JSON file-backed store at the given path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		jobs: make(map[string]*Job),
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("load existing data: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var persist jsonPersistence
	if err := json.Unmarshal(data, &persist); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	s.jobs = make(map[string]*Job, len(persist.Reports))
	for _, job := range persist.Reports {
		s.jobs[job.ReportID] = job
	}
	return nil
}

// save writes the in-memory map to the JSON file. Callers hold mu.
func (s *JSONStore) save() error {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	jobs = newestFirst(jobs, len(jobs)+1)

	data, err := json.MarshalIndent(jsonPersistence{Reports: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Create records a new Running job.
func (s *JSONStore) Create(ctx context.Context, reportID string, createdAt time.Time) (*Job, error) {
	job, err := newJob(reportID, createdAt)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[reportID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrJobExists, reportID)
	}
	s.jobs[reportID] = job
	if err := s.save(); err != nil {
		delete(s.jobs, reportID)
		return nil, err
	}
	return clone(job), nil
}

// SetResult moves a Running job to its terminal state.
func (s *JSONStore) SetResult(ctx context.Context, reportID string, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[reportID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, reportID)
	}
	updated := clone(current)
	if err := apply(updated, res); err != nil {
		return err
	}
	s.jobs[reportID] = updated
	if err := s.save(); err != nil {
		s.jobs[reportID] = current
		return err
	}
	return nil
}

// Get retrieves a specific job by its ID.
func (s *JSONStore) Get(ctx context.Context, reportID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reportID)
	}
	return clone(job), nil
}

// List retrieves the most recent jobs without their rows.
func (s *JSONStore) List(ctx context.Context, limit int) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, summary(job))
	}
	return newestFirst(jobs, limit), nil
}

// Purge deletes terminal jobs created before olderThan.
func (s *JSONStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]*Job)
	for id, job := range s.jobs {
		if purgeable(job, olderThan) {
			removed[id] = job
			delete(s.jobs, id)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		for id, job := range removed {
			s.jobs[id] = job
		}
		return 0, err
	}
	return len(removed), nil
}

// Close is a no-op; the file is only open during writes.
func (s *JSONStore) Close() error {
	return nil
}
