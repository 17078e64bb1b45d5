package gradient

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
)

// Config bounds the worker's dispatch loop.
type Config struct {
	Enabled      bool
	Concurrency  int64
	MaxRetries   int
	PollInterval time.Duration
}

// Worker is the gradient dispatcher: a ticker (every cfg.PollInterval) that reclaims due delayed
// jobs and fires bounded-concurrency processOne tasks.
type Worker struct {
	repo    *Repository
	objects objectstore.Store
	cfg     Config

	gate   *semaphore.Weighted
	active int64

	stopCh chan struct{}
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWorker builds a Worker.
func NewWorker(repo *Repository, objects objectstore.Store, cfg Config) *Worker {
	return &Worker{
		repo:    repo,
		objects: objects,
		cfg:     cfg,
		gate:    semaphore.NewWeighted(cfg.Concurrency),
		stopCh:  make(chan struct{}),
	}
}

// JobID computes the deterministic, dedup-friendly job id for storageKey.
func JobID(storageKey string) string {
	return "gradient-" + strings.ReplaceAll(storageKey, "/", "-")
}

// Enqueue schedules gradient extraction for one uploaded image, returning
// the job id. If the worker is disabled, it returns ("", nil) without
// writing anything. Enqueue is idempotent: a job already present for this
// storageKey is returned as-is with no new queue push.
func (w *Worker) Enqueue(ctx context.Context, guildID, galleryName, storageKey, itemID string) (string, error) {
	if !w.cfg.Enabled {
		return "", nil
	}
	if storageKey == "" {
		return "", errInvalidInput("storageKey is required")
	}

	jobID := JobID(storageKey)

	exists, err := w.repo.JobExists(ctx, jobID)
	if err != nil {
		return "", err
	}
	if exists {
		return jobID, nil
	}

	if err := w.markRecordPendingIfAbsent(ctx, storageKey); err != nil {
		return "", err
	}

	job := &Job{
		JobID:       jobID,
		GuildID:     guildID,
		GalleryName: galleryName,
		StorageKey:  storageKey,
		ItemID:      itemID,
		Attempts:    0,
	}
	if err := w.repo.PutJob(ctx, job); err != nil {
		return "", err
	}
	if err := w.repo.Enqueue(ctx, jobID); err != nil {
		return "", err
	}
	return jobID, nil
}

func (w *Worker) markRecordPendingIfAbsent(ctx context.Context, storageKey string) error {
	existing, err := w.repo.GetRecord(ctx, storageKey)
	if err != nil && err != kvstore.ErrNotFound {
		return err
	}
	if existing != nil && existing.Status == StatusCompleted {
		return nil
	}
	now := nowMs()
	rec := &Record{Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if existing != nil {
		rec.Attempts = existing.Attempts
		rec.CreatedAt = existing.CreatedAt
	}
	return w.repo.PutRecord(ctx, storageKey, rec)
}

// Start runs the dispatcher loop in a background goroutine until Stop is
// called.
func (w *Worker) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		log.Info().Msg("gradient worker disabled, not starting")
		return
	}
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop halts the dispatcher and drains any in-flight jobs back onto the
// main queue so a restart re-attempts them; safe because processing is
// idempotent and completion is a terminal latch.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()

	drained, err := w.repo.DrainProcessing(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("gradient worker: failed to drain processing list on shutdown")
		return
	}
	if drained > 0 {
		log.Info().Int("count", drained).Msg("gradient worker: drained in-flight jobs back to queue")
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if n, err := w.repo.ReclaimDelayed(ctx, nowMs()); err != nil {
		log.Warn().Err(err).Msg("gradient worker: failed to reclaim delayed jobs")
	} else if n > 0 {
		log.Debug().Int("count", n).Msg("gradient worker: reclaimed delayed jobs")
	}

	for i := int64(0); i < w.cfg.Concurrency; i++ {
		if !w.gate.TryAcquire(1) {
			return
		}
		atomic.AddInt64(&w.active, 1)
		go func() {
			defer w.gate.Release(1)
			defer atomic.AddInt64(&w.active, -1)
			w.processOne(ctx)
		}()
	}
}

func (w *Worker) processOne(ctx context.Context) {
	jobID, ok, err := w.repo.AcquireNext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("gradient worker: failed to acquire next job")
		return
	}
	if !ok {
		return
	}

	start := time.Now()
	job, err := w.repo.GetJob(ctx, jobID)
	if err != nil {
		if err == kvstore.ErrNotFound {
			_ = w.repo.ReleaseProcessing(ctx, jobID)
			return
		}
		log.Warn().Err(err).Str("jobId", jobID).Msg("gradient worker: failed to load job")
		return
	}

	if err := w.markRecordProcessing(ctx, job.StorageKey); err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("gradient worker: failed to mark record processing")
	}

	job.Attempts++
	if err := w.repo.PutJob(ctx, job); err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("gradient worker: failed to persist attempt count")
	}

	gradErr := w.extractAndStore(ctx, job)

	if err := w.repo.ReleaseProcessing(ctx, jobID); err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("gradient worker: failed to release processing slot")
	}

	if gradErr == nil {
		if err := w.repo.DeleteJob(ctx, jobID); err != nil {
			log.Warn().Err(err).Str("jobId", jobID).Msg("gradient worker: failed to delete completed job")
		}
		w.metrics.recordSuccess(time.Since(start))
		return
	}

	w.metrics.recordFailure()

	if job.Attempts >= w.cfg.MaxRetries {
		w.markRecordFailed(ctx, job.StorageKey, gradErr, job.Attempts)
		if err := w.repo.DeleteJob(ctx, jobID); err != nil {
			log.Warn().Err(err).Str("jobId", jobID).Msg("gradient worker: failed to delete exhausted job")
		}
		return
	}

	backoffMs := int64(1) << uint(job.Attempts)
	backoffMs *= 1000
	if err := w.repo.Delay(ctx, jobID, nowMs()+backoffMs); err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("gradient worker: failed to schedule retry")
	}
}

func (w *Worker) extractAndStore(ctx context.Context, job *Job) error {
	result, err := w.objects.GetObject(ctx, job.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("image is empty")
	}

	grad, err := ExtractGradient(data)
	if err != nil {
		return fmt.Errorf("extract gradient: %w", err)
	}

	now := nowMs()
	return w.repo.PutRecord(ctx, job.StorageKey, &Record{
		Status:    StatusCompleted,
		Gradient:  grad,
		Attempts:  job.Attempts,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (w *Worker) markRecordProcessing(ctx context.Context, storageKey string) error {
	existing, err := w.repo.GetRecord(ctx, storageKey)
	if err != nil && err != kvstore.ErrNotFound {
		return err
	}
	now := nowMs()
	rec := &Record{Status: StatusProcessing, UpdatedAt: now, CreatedAt: now}
	if existing != nil {
		rec.Attempts = existing.Attempts
		rec.CreatedAt = existing.CreatedAt
	}
	return w.repo.PutRecord(ctx, storageKey, rec)
}

func (w *Worker) markRecordFailed(ctx context.Context, storageKey string, cause error, attempts int) {
	msg := cause.Error()
	now := nowMs()
	existing, _ := w.repo.GetRecord(ctx, storageKey)
	createdAt := now
	if existing != nil {
		createdAt = existing.CreatedAt
	}
	if err := w.repo.PutRecord(ctx, storageKey, &Record{
		Status:    StatusFailed,
		Attempts:  attempts,
		LastError: &msg,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}); err != nil {
		log.Warn().Err(err).Str("storageKey", storageKey).Msg("gradient worker: failed to persist terminal failure record")
	}
}

// IsRunning reports whether the dispatcher loop goroutine is alive.
func (w *Worker) IsRunning() bool {
	select {
	case <-w.stopCh:
		return false
	default:
		return w.cfg.Enabled
	}
}

// IsEnabled reports the worker's configured enablement.
func (w *Worker) IsEnabled() bool {
	return w.cfg.Enabled
}

// ActiveJobs returns the current count of in-flight processOne tasks.
func (w *Worker) ActiveJobs() int64 {
	return atomic.LoadInt64(&w.active)
}

// Snapshot returns the current metrics plus live queue/processing/delayed
// lengths read from the store.
func (w *Worker) Snapshot(ctx context.Context) (MetricsSnapshot, error) {
	queueLen, err := w.repo.QueueLen(ctx)
	if err != nil {
		return MetricsSnapshot{}, err
	}
	processingLen, err := w.repo.ProcessingLen(ctx)
	if err != nil {
		return MetricsSnapshot{}, err
	}
	delayedLen, err := w.repo.DelayedLen(ctx)
	if err != nil {
		return MetricsSnapshot{}, err
	}

	snap := w.metrics.snapshot()
	snap.ActiveJobs = w.ActiveJobs()
	snap.IsRunning = w.IsRunning()
	snap.IsEnabled = w.IsEnabled()
	snap.QueueLength = queueLen
	snap.ProcessingLength = processingLen
	snap.DelayedLength = delayedLen
	return snap, nil
}
