package gradient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
)

const (
	queueKey      = "gradient:queue"
	processingKey = "gradient:processing"
	delayedKey    = "gradient:delayed"
)

// Repository is the KV-backed persistence for the gradient queue, its
// in-flight/delayed indexes, and per-image records.
type Repository struct {
	kv kvstore.Store

	jobTTL    time.Duration
	recordTTL time.Duration
}

// NewRepository builds a Repository with the given job and record TTLs.
func NewRepository(kv kvstore.Store, jobTTL, recordTTL time.Duration) *Repository {
	return &Repository{kv: kv, jobTTL: jobTTL, recordTTL: recordTTL}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("gradient:job:%s", jobID)
}

func recordKey(storageKey string) string {
	return fmt.Sprintf("gradient:%s", storageKey)
}

// GetJob fetches a job payload, or kvstore.ErrNotFound.
func (r *Repository) GetJob(ctx context.Context, jobID string) (*Job, error) {
	raw, err := r.kv.Get(ctx, jobKey(jobID))
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("parse gradient job: %w", err)
	}
	return &job, nil
}

// PutJob persists a job payload with the configured TTL.
func (r *Repository) PutJob(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal gradient job: %w", err)
	}
	return r.kv.SetEX(ctx, jobKey(job.JobID), string(raw), r.jobTTL)
}

// DeleteJob removes a job payload.
func (r *Repository) DeleteJob(ctx context.Context, jobID string) error {
	return r.kv.Del(ctx, jobKey(jobID))
}

// JobExists reports whether a job payload is present, for enqueue dedup.
func (r *Repository) JobExists(ctx context.Context, jobID string) (bool, error) {
	_, err := r.kv.Get(ctx, jobKey(jobID))
	if err == kvstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Enqueue appends jobID to the FIFO queue.
func (r *Repository) Enqueue(ctx context.Context, jobID string) error {
	return r.kv.RPush(ctx, queueKey, jobID)
}

// ReclaimDelayed moves every delayed job whose retry time has passed back
// onto the main queue, guarding against double-adds via ZRem's return
// count (a job already reclaimed by a concurrent tick returns 0 removed).
func (r *Repository) ReclaimDelayed(ctx context.Context, nowMs int64) (int, error) {
	due, err := r.kv.ZRangeByScore(ctx, delayedKey, kvstore.NegInf, float64(nowMs))
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, jobID := range due {
		removed, err := r.kv.ZRem(ctx, delayedKey, jobID)
		if err != nil {
			return reclaimed, err
		}
		if removed == 0 {
			continue
		}
		if err := r.kv.RPush(ctx, queueKey, jobID); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

// Delay schedules jobID for retry at runAtMs.
func (r *Repository) Delay(ctx context.Context, jobID string, runAtMs int64) error {
	return r.kv.ZAdd(ctx, delayedKey, kvstore.Z{Score: float64(runAtMs), Member: jobID})
}

// AcquireNext moves one job from the queue to the processing list,
// returning ("", false, nil) if the queue is empty.
func (r *Repository) AcquireNext(ctx context.Context) (string, bool, error) {
	return r.kv.LMove(ctx, queueKey, processingKey, true, false)
}

// ReleaseProcessing removes jobID from the processing list.
func (r *Repository) ReleaseProcessing(ctx context.Context, jobID string) error {
	_, err := r.kv.LRem(ctx, processingKey, 0, jobID)
	return err
}

// DrainProcessing moves every in-flight job back onto the main queue,
// used on worker shutdown so nothing is lost mid-flight.
func (r *Repository) DrainProcessing(ctx context.Context) (int, error) {
	n := 0
	for {
		_, moved, err := r.kv.LMove(ctx, processingKey, queueKey, true, false)
		if err != nil {
			return n, err
		}
		if !moved {
			return n, nil
		}
		n++
	}
}

// QueueLen, ProcessingLen and DelayedLen report the three index sizes for
// metrics.
func (r *Repository) QueueLen(ctx context.Context) (int64, error) {
	return r.kv.LLen(ctx, queueKey)
}

func (r *Repository) ProcessingLen(ctx context.Context) (int64, error) {
	return r.kv.LLen(ctx, processingKey)
}

func (r *Repository) DelayedLen(ctx context.Context) (int64, error) {
	return r.kv.ZCard(ctx, delayedKey)
}

// GetRecord fetches a per-image record, or kvstore.ErrNotFound.
func (r *Repository) GetRecord(ctx context.Context, storageKey string) (*Record, error) {
	raw, err := r.kv.Get(ctx, recordKey(storageKey))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("parse gradient record: %w", err)
	}
	return &rec, nil
}

// PutRecord persists a per-image record with the configured TTL.
func (r *Repository) PutRecord(ctx context.Context, storageKey string, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal gradient record: %w", err)
	}
	return r.kv.SetEX(ctx, recordKey(storageKey), string(raw), r.recordTTL)
}

// BatchGetRecords fetches multiple per-image records in one round trip,
// returning only the keys that exist.
func (r *Repository) BatchGetRecords(ctx context.Context, storageKeys []string) (map[string]*Record, error) {
	if len(storageKeys) == 0 {
		return map[string]*Record{}, nil
	}
	keys := make([]string, len(storageKeys))
	for i, k := range storageKeys {
		keys[i] = recordKey(k)
	}
	raw, err := r.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Record, len(storageKeys))
	for i, v := range raw {
		if v == nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(*v), &rec); err != nil {
			continue
		}
		out[storageKeys[i]] = &rec
	}
	return out, nil
}
