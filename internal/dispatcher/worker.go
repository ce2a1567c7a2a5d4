package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/config"
	mpkg "github.com/local/exammarker/internal/metrics"
	"github.com/local/exammarker/internal/orchestrator"
)

// Queue is the consumer-side contract the worker pool needs.
type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
	Depths(ctx context.Context) (int64, int64, int64, error)
}

// Processor runs one grading job to completion.
type Processor interface {
	Process(ctx context.Context, job orchestrator.GradingJob) error
}

// Worker consumes grading jobs from the queue and drives the pipeline.
// Failed jobs are retried with exponential delay up to JobMaxAttempts, then
// dead-lettered. Messages are acked only after the outcome is decided, so a
// crashed worker leaves its job pending for redelivery.
type Worker struct {
	cfg      config.WorkerConfig
	q        Queue
	proc     Processor
	status   orchestrator.StatusStore
	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func New(cfg config.WorkerConfig, q Queue, proc Processor, status orchestrator.StatusStore) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.JobMaxAttempts <= 0 {
		cfg.JobMaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	return &Worker{cfg: cfg, q: q, proc: proc, status: status, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
	w.wg.Add(1)
	go w.reportDepths()
}

// Stop signals the loops and waits for in-flight jobs, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("worker-%d", id)
	log.Info().Str("consumer", consumer).Msg("grading worker started")

	for {
		select {
		case <-w.stop:
			log.Info().Str("consumer", consumer).Msg("grading worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(context.Background(), consumer, 2*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}
		w.handle(consumer, msgID, data)
	}
}

func (w *Worker) handle(consumer, msgID string, data []byte) {
	ctx := context.Background()

	job, err := orchestrator.ParseJob(data)
	if err != nil {
		log.Error().Err(err).Str("msg_id", msgID).Msg("malformed job payload, dead-lettering")
		_ = w.q.AddDLQ(ctx, data, "malformed payload")
		_ = w.q.Ack(ctx, msgID)
		mpkg.IncProcessed("malformed")
		return
	}
	jl := log.With().Str("consumer", consumer).Str("job_id", job.JobID).Int("attempt", job.Attempt).Logger()

	if job.IdempotencyKey != "" {
		if done, _ := w.q.IsIdemDone(ctx, job.IdempotencyKey); done {
			jl.Info().Msg("job already completed, skipping duplicate")
			_ = w.q.Ack(ctx, msgID)
			return
		}
	}
	if cancelled, _ := w.q.IsCancelled(ctx, job.JobID); cancelled {
		jl.Info().Msg("job cancelled, skipping")
		_ = w.q.Ack(ctx, msgID)
		mpkg.IncProcessed("cancelled")
		return
	}

	timeout := w.cfg.JobTotalTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	err = w.proc.Process(jobCtx, job)
	cancel()

	switch {
	case err == nil:
		if job.IdempotencyKey != "" {
			_ = w.q.MarkIdemDone(ctx, job.IdempotencyKey, 24*time.Hour)
		}
		_ = w.q.Ack(ctx, msgID)
		mpkg.IncProcessed("success")

	case orchestrator.IsFatal(err):
		jl.Error().Err(err).Msg("job failed permanently")
		w.markFailed(ctx, job.JobID, err)
		_ = w.q.AddDLQ(ctx, data, err.Error())
		_ = w.q.Ack(ctx, msgID)
		mpkg.IncProcessed("fatal")

	case job.Attempt >= w.cfg.JobMaxAttempts:
		jl.Error().Err(err).Int("max_attempts", w.cfg.JobMaxAttempts).Msg("job exhausted retries")
		w.markFailed(ctx, job.JobID, err)
		_ = w.q.AddDLQ(ctx, data, fmt.Sprintf("exhausted retries: %v", err))
		_ = w.q.Ack(ctx, msgID)
		mpkg.IncProcessed("exhausted")

	default:
		shift := job.Attempt - 1
		if shift < 0 {
			shift = 0
		}
		delay := w.cfg.RetryBaseDelay << shift
		jl.Warn().Err(err).Dur("delay", delay).Msg("job failed, scheduling retry")
		job.Attempt++
		if qerr := w.q.EnqueueDelayed(ctx, job.Marshal(), time.Now().Add(delay)); qerr != nil {
			jl.Error().Err(qerr).Msg("retry enqueue failed, dead-lettering")
			_ = w.q.AddDLQ(ctx, data, fmt.Sprintf("retry enqueue failed: %v", qerr))
		}
		_ = w.q.Ack(ctx, msgID)
		mpkg.IncRetry()
	}
}

func (w *Worker) markFailed(ctx context.Context, jobID string, cause error) {
	if w.status == nil {
		return
	}
	st, ok, _ := w.status.Get(ctx, jobID)
	if !ok {
		st = orchestrator.Status{}
	}
	now := time.Now()
	st.Status = "failed"
	st.Message = cause.Error()
	st.End = &now
	_ = w.status.Set(ctx, jobID, st)
}

func (w *Worker) reportDepths() {
	defer w.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			ready, delayed, dlq, err := w.q.Depths(ctx)
			cancel()
			if err != nil {
				continue
			}
			mpkg.SetQueueDepth("ready", ready)
			mpkg.SetQueueDepth("delayed", delayed)
			mpkg.SetQueueDepth("dlq", dlq)
		}
	}
}
