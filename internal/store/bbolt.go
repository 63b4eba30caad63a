package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// reportsBucket is the top-level bucket for all jobs, keyed by report_id.
const reportsBucket = "reports"

// BoltStore implements the Store interface using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(reportsBucket)); err != nil {
			return fmt.Errorf("create reports bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func putJob(b *bolt.Bucket, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return b.Put([]byte(job.ReportID), data)
}

func decodeJob(data []byte) (*Job, error) {
	job := &Job{}
	if err := json.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

// Create records a new Running job.
func (s *BoltStore) Create(ctx context.Context, reportID string, createdAt time.Time) (*Job, error) {
	job, err := newJob(reportID, createdAt)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(reportsBucket))
		if b.Get([]byte(reportID)) != nil {
			return fmt.Errorf("%w: %s", ErrJobExists, reportID)
		}
		return putJob(b, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// SetResult moves a Running job to its terminal state inside one transaction.
func (s *BoltStore) SetResult(ctx context.Context, reportID string, res Result) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(reportsBucket))
		data := b.Get([]byte(reportID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, reportID)
		}
		job, err := decodeJob(data)
		if err != nil {
			return err
		}
		if err := apply(job, res); err != nil {
			return err
		}
		return putJob(b, job)
	})
}

// Get retrieves a specific job by its ID.
func (s *BoltStore) Get(ctx context.Context, reportID string) (*Job, error) {
	if reportID == "" {
		return nil, fmt.Errorf("%w: empty report_id", ErrNotFound)
	}

	var job *Job
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(reportsBucket)).Get([]byte(reportID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, reportID)
		}
		var err error
		job, err = decodeJob(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List retrieves the most recent jobs without their rows.
func (s *BoltStore) List(ctx context.Context, limit int) ([]*Job, error) {
	var jobs []*Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(reportsBucket)).ForEach(func(k, v []byte) error {
			job, err := decodeJob(v)
			if err != nil {
				return fmt.Errorf("job %s: %w", string(k), err)
			}
			jobs = append(jobs, summary(job))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return newestFirst(jobs, limit), nil
}

// Purge deletes terminal jobs created before olderThan.
func (s *BoltStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(reportsBucket))

		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			job, err := decodeJob(v)
			if err != nil {
				return fmt.Errorf("job %s: %w", string(k), err)
			}
			if purgeable(job, olderThan) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close releases resources held by the store.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
