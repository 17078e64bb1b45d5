package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
)

const jobsListKey = "upload:jobs"

// Repository is the KV-backed storage for upload-job records: one JSON
// blob per job with a TTL, plus a list of job ids for enumeration.
type Repository struct {
	kv kvstore.Store
}

// NewRepository builds a Repository over kv.
func NewRepository(kv kvstore.Store) *Repository {
	return &Repository{kv: kv}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("upload:job:%s", jobID)
}

// Create persists a new job record and appends it to the enumeration
// list.
func (r *Repository) Create(ctx context.Context, job *Job, ttl time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal upload job: %w", err)
	}
	if err := r.kv.SetEX(ctx, jobKey(job.JobID), string(raw), ttl); err != nil {
		return err
	}
	return r.kv.RPush(ctx, jobsListKey, job.JobID)
}

// Get fetches a job record, or kvstore.ErrNotFound.
func (r *Repository) Get(ctx context.Context, jobID string) (*Job, error) {
	raw, err := r.kv.Get(ctx, jobKey(jobID))
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("parse upload job: %w", err)
	}
	return &job, nil
}

// Update overwrites a job record with a fresh TTL.
func (r *Repository) Update(ctx context.Context, job *Job, ttl time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal upload job: %w", err)
	}
	return r.kv.SetEX(ctx, jobKey(job.JobID), string(raw), ttl)
}
