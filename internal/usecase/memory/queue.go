package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/internal/domain/repositories"
	pkgai "github.com/johnquangdev/meeting-memory/pkg/ai"
	"github.com/johnquangdev/meeting-memory/pkg/config"
	"github.com/johnquangdev/meeting-memory/pkg/jobcontext"
)

// EmbeddingQueue drives asynchronous embedding computation for chunks and
// summaries. Jobs are durable rows claimed FIFO; a failed embedding call
// reschedules the job with exponential backoff until retries are
// exhausted, after which the job is terminally failed but kept for
// diagnostics. Queue failures never propagate to transcript ingestion.
type EmbeddingQueue struct {
	jobRepo     repositories.EmbeddingJobRepository
	chunkRepo   repositories.ChunkRepository
	summaryRepo repositories.SummaryRepository
	embedder    pkgai.EmbeddingClient
	cfg         config.RAGConfig
	logger      *zap.Logger

	workerStopChan  chan struct{}
	workerWg        sync.WaitGroup
	isWorkerRunning bool
	workerMutex     sync.Mutex
}

// NewEmbeddingQueue constructs a new embedding queue
func NewEmbeddingQueue(
	jobRepo repositories.EmbeddingJobRepository,
	chunkRepo repositories.ChunkRepository,
	summaryRepo repositories.SummaryRepository,
	embedder pkgai.EmbeddingClient,
	cfg config.RAGConfig,
	logger *zap.Logger,
) *EmbeddingQueue {
	return &EmbeddingQueue{
		jobRepo:     jobRepo,
		chunkRepo:   chunkRepo,
		summaryRepo: summaryRepo,
		embedder:    embedder,
		cfg:         cfg,
		logger:      logger,
	}
}

// Enqueue creates a pending embedding job for the target. A target with a
// job already pending is not enqueued again: the pending job reads the
// target's current text when it drains, so a second row would only
// duplicate the work.
func (q *EmbeddingQueue) Enqueue(ctx context.Context, meetingID uuid.UUID, kind entities.EmbeddingTargetKind, targetID uuid.UUID) error {
	existing, err := q.jobRepo.FindPendingByTarget(ctx, kind, targetID)
	if err != nil {
		return fmt.Errorf("failed to check for a pending job: %w", err)
	}
	if existing != nil {
		if q.logger != nil {
			q.logger.Debug("embedding job already pending for target",
				zap.String("job_id", existing.ID.String()),
				zap.String("target_kind", string(kind)),
				zap.String("target_id", targetID.String()),
			)
		}
		return nil
	}

	job := entities.NewEmbeddingJob(meetingID, kind, targetID, q.cfg.MaxRetries)
	if err := q.jobRepo.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue embedding job: %w", err)
	}
	if q.logger != nil {
		q.logger.Debug("enqueued embedding job",
			zap.String("job_id", job.ID.String()),
			zap.String("meeting_id", meetingID.String()),
			zap.String("target_kind", string(kind)),
		)
	}
	return nil
}

// Drain claims up to batchSize eligible pending jobs and processes them.
// Returns the number of jobs processed (including ones that failed and
// were rescheduled). Safe to call concurrently with Enqueue and with
// other drains; an empty queue returns 0 with no side effects.
func (q *EmbeddingQueue) Drain(ctx context.Context, batchSize int) (int, error) {
	jobs, err := q.jobRepo.ClaimPending(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	for i := range jobs {
		q.processJob(ctx, &jobs[i])
	}
	return len(jobs), nil
}

// RecoverStale resets in_progress jobs older than the stale timeout back
// to pending. Run once at worker startup to repair crash leftovers.
func (q *EmbeddingQueue) RecoverStale(ctx context.Context) (int64, error) {
	n, err := q.jobRepo.ResetStale(ctx, q.cfg.StaleTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	if n > 0 && q.logger != nil {
		q.logger.Warn("reset stale in_progress embedding jobs", zap.Int64("count", n))
	}
	return n, nil
}

// backoffDelay computes the queue-level reschedule delay for a retry:
// base * 2^retryCount, capped.
func (q *EmbeddingQueue) backoffDelay(retryCount int) time.Duration {
	delay := q.cfg.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= q.cfg.BackoffCap {
			return q.cfg.BackoffCap
		}
	}
	if delay > q.cfg.BackoffCap {
		delay = q.cfg.BackoffCap
	}
	return delay
}

// processJob runs one claimed job to a terminal or rescheduled state.
// Errors are recorded on the job row, never returned: a broken embedding
// backend must not stop the drain loop.
func (q *EmbeddingQueue) processJob(parentCtx context.Context, job *entities.EmbeddingJob) {
	ctx, cancel := jobcontext.JobBegin(parentCtx, job.ID, string(job.TargetKind), job.RetryCount)
	defer cancel()

	text, ok, err := q.resolveTargetText(ctx, job)
	if err != nil {
		q.rescheduleOrFail(ctx, job, fmt.Sprintf("failed to load target: %v", err))
		return
	}
	if !ok {
		// Target deleted after the job was enqueued. Jobs reference
		// targets by identity, not ownership, so this is a no-op.
		job.MarkCompleted()
		if updateErr := q.jobRepo.Update(ctx, job); updateErr != nil && q.logger != nil {
			q.logger.Error("failed to complete orphaned job", zap.Error(updateErr))
		}
		if q.logger != nil {
			q.logger.Info("embedding job target gone, skipping",
				zap.String("job_id", job.ID.String()),
				zap.String("target_kind", string(job.TargetKind)),
			)
		}
		return
	}

	vector, err := q.embedWithRetry(ctx, text)
	if err != nil {
		var dimErr *pkgai.DimensionError
		if errors.As(err, &dimErr) {
			// Wrong-shape data is corruption, not a transient fault.
			job.MarkFailed(dimErr.Error())
			if updateErr := q.jobRepo.Update(ctx, job); updateErr != nil && q.logger != nil {
				q.logger.Error("failed to mark job failed", zap.Error(updateErr))
			}
			if q.logger != nil {
				q.logger.Error("embedding dimension mismatch, job failed terminally",
					zap.String("job_id", job.ID.String()),
					zap.Int("want", dimErr.Want),
					zap.Int("got", dimErr.Got),
				)
			}
			return
		}
		q.rescheduleOrFail(ctx, job, err.Error())
		return
	}

	if err := q.writeEmbedding(ctx, job, vector); err != nil {
		q.rescheduleOrFail(ctx, job, fmt.Sprintf("failed to store embedding: %v", err))
		return
	}

	job.MarkCompleted()
	if err := q.jobRepo.Update(ctx, job); err != nil && q.logger != nil {
		q.logger.Error("failed to mark job completed", zap.Error(err))
	}
	if q.logger != nil {
		q.logger.Info("embedding job completed",
			zap.String("job_id", job.ID.String()),
			zap.String("target_kind", string(job.TargetKind)),
			zap.Duration("elapsed", jobcontext.Elapsed(ctx)),
		)
	}
}

// resolveTargetText loads the text to embed. ok=false means the target no
// longer exists.
func (q *EmbeddingQueue) resolveTargetText(ctx context.Context, job *entities.EmbeddingJob) (string, bool, error) {
	switch job.TargetKind {
	case entities.EmbeddingTargetChunk:
		chunk, err := q.chunkRepo.GetByID(ctx, job.TargetID)
		if err != nil {
			return "", false, err
		}
		if chunk == nil {
			return "", false, nil
		}
		return chunk.CleanedText, true, nil
	case entities.EmbeddingTargetSummary:
		summary, err := q.summaryRepo.GetByMeeting(ctx, job.MeetingID)
		if err != nil {
			return "", false, err
		}
		if summary == nil || summary.ID != job.TargetID {
			// Summary deleted or already replaced by a newer row with its
			// own job; embedding stale text would be wasted work.
			return "", false, nil
		}
		return summary.SummaryText, true, nil
	default:
		return "", false, fmt.Errorf("unknown target kind %q", job.TargetKind)
	}
}

// embedWithRetry wraps the single embedding call in a short in-process
// retry for flaky connections. Durable retries across drain cycles are
// handled by the job's backoff gate; this only smooths over blips inside
// one attempt.
func (q *EmbeddingQueue) embedWithRetry(ctx context.Context, text string) (entities.Vector, error) {
	var vector []float32
	embedFn := func() error {
		v, err := q.embedder.Embed(ctx, text)
		if err != nil {
			var dimErr *pkgai.DimensionError
			if errors.As(err, &dimErr) {
				return backoff.Permanent(err)
			}
			return err
		}
		vector = v
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.cfg.BackoffBase / 2
	bo.MaxInterval = q.cfg.BackoffCap
	bo.MaxElapsedTime = 2 * q.cfg.BackoffBase

	notify := func(err error, wait time.Duration) {
		if q.logger == nil {
			return
		}
		jobID, _ := jobcontext.GetJobID(ctx)
		kind, _ := jobcontext.GetTargetKind(ctx)
		q.logger.Debug("embedding call retried",
			zap.String("job_id", jobID.String()),
			zap.String("target_kind", kind),
			zap.Int("queue_attempt", jobcontext.GetRetryAttempt(ctx)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(embedFn, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return entities.Vector(vector), nil
}

// writeEmbedding stores the vector on the job's target
func (q *EmbeddingQueue) writeEmbedding(ctx context.Context, job *entities.EmbeddingJob, vector entities.Vector) error {
	switch job.TargetKind {
	case entities.EmbeddingTargetChunk:
		return q.chunkRepo.UpdateEmbedding(ctx, job.TargetID, vector)
	case entities.EmbeddingTargetSummary:
		return q.summaryRepo.UpdateEmbedding(ctx, job.TargetID, vector)
	default:
		return fmt.Errorf("unknown target kind %q", job.TargetKind)
	}
}

// rescheduleOrFail applies the retry policy after a failed attempt
func (q *EmbeddingQueue) rescheduleOrFail(ctx context.Context, job *entities.EmbeddingJob, errMsg string) {
	if job.IsRetryable() {
		delay := q.backoffDelay(job.RetryCount)
		job.MarkRetry(errMsg, delay)
		if q.logger != nil {
			q.logger.Warn("embedding job failed, rescheduled",
				zap.String("job_id", job.ID.String()),
				zap.Int("retry_count", job.RetryCount),
				zap.Duration("backoff", delay),
				zap.String("error", errMsg),
			)
		}
	} else {
		job.MarkFailed(errMsg)
		if q.logger != nil {
			q.logger.Error("embedding job failed terminally",
				zap.String("job_id", job.ID.String()),
				zap.Int("retry_count", job.RetryCount),
				zap.String("error", errMsg),
			)
		}
	}
	if err := q.jobRepo.Update(ctx, job); err != nil && q.logger != nil {
		q.logger.Error("failed to update job after failure", zap.Error(err))
	}
}

// StartWorker starts the background drain loop: an initial stale-job
// recovery pass, then a drain on a fixed interval. Ingestion and queries
// run on independent call paths and never wait on this loop.
func (q *EmbeddingQueue) StartWorker(ctx context.Context) error {
	q.workerMutex.Lock()
	defer q.workerMutex.Unlock()

	if q.isWorkerRunning {
		return fmt.Errorf("embedding worker already running")
	}
	q.workerStopChan = make(chan struct{})
	q.isWorkerRunning = true

	q.workerWg.Add(1)
	go func() {
		defer q.workerWg.Done()

		if _, err := q.RecoverStale(ctx); err != nil && q.logger != nil {
			q.logger.Error("stale job recovery failed", zap.Error(err))
		}

		ticker := time.NewTicker(q.cfg.DrainInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.workerStopChan:
				return
			case <-ticker.C:
				processed, err := q.Drain(ctx, q.cfg.DrainBatch)
				if err != nil {
					if q.logger != nil {
						q.logger.Error("drain cycle failed", zap.Error(err))
					}
					continue
				}
				if processed > 0 && q.logger != nil {
					q.logger.Debug("drain cycle finished", zap.Int("processed", processed))
				}
			}
		}
	}()

	if q.logger != nil {
		q.logger.Info("embedding worker started", zap.Duration("interval", q.cfg.DrainInterval))
	}
	return nil
}

// StopWorker stops the background drain loop and waits for it to exit
func (q *EmbeddingQueue) StopWorker() error {
	q.workerMutex.Lock()
	defer q.workerMutex.Unlock()

	if !q.isWorkerRunning {
		return nil
	}
	close(q.workerStopChan)
	q.workerWg.Wait()
	q.isWorkerRunning = false

	if q.logger != nil {
		q.logger.Info("embedding worker stopped")
	}
	return nil
}
