package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/local/exammarker/internal/config"
	"github.com/local/exammarker/internal/orchestrator"
)

type fakeQueue struct {
	mu        sync.Mutex
	acked     []string
	delayed   [][]byte
	dlq       []string
	cancelled map[string]bool
	idemDone  map[string]bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{cancelled: map[string]bool{}, idemDone: map[string]bool{}}
}

func (q *fakeQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	return "", nil, nil
}

func (q *fakeQueue) Ack(ctx context.Context, msgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, msgID)
	return nil
}

func (q *fakeQueue) EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, payload)
	return nil
}

func (q *fakeQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dlq = append(q.dlq, reason)
	return nil
}

func (q *fakeQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return q.cancelled[jobID], nil
}

func (q *fakeQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
	return q.idemDone[key], nil
}

func (q *fakeQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.idemDone[key] = true
	return nil
}

func (q *fakeQueue) Depths(ctx context.Context) (int64, int64, int64, error) {
	return 0, 0, 0, nil
}

type fakeProcessor struct {
	mu   sync.Mutex
	jobs []orchestrator.GradingJob
	err  error
}

func (p *fakeProcessor) Process(ctx context.Context, job orchestrator.GradingJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return p.err
}

type fakeStatus struct {
	mu  sync.Mutex
	set map[string]orchestrator.Status
}

func (s *fakeStatus) Set(ctx context.Context, jobID string, st orchestrator.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		s.set = map[string]orchestrator.Status{}
	}
	s.set[jobID] = st
	return nil
}

func (s *fakeStatus) Get(ctx context.Context, jobID string) (orchestrator.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.set[jobID]
	return st, ok, nil
}

func newWorker(q *fakeQueue, p *fakeProcessor, st *fakeStatus) *Worker {
	return New(config.WorkerConfig{
		Concurrency:     1,
		JobMaxAttempts:  3,
		RetryBaseDelay:  time.Second,
		JobTotalTimeout: time.Minute,
	}, q, p, st)
}

func job(attempt int) orchestrator.GradingJob {
	return orchestrator.GradingJob{
		JobID:          "job-1",
		FileRef:        "file:///tmp/exam.pdf",
		IdempotencyKey: "grade:job-1",
		Attempt:        attempt,
	}
}

func TestHandleSuccessAcksAndMarksIdempotent(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{}
	w := newWorker(q, p, &fakeStatus{})

	w.handle("worker-0", "msg-1", job(1).Marshal())

	if len(p.jobs) != 1 {
		t.Fatalf("processor ran %d times, want 1", len(p.jobs))
	}
	if len(q.acked) != 1 || q.acked[0] != "msg-1" {
		t.Fatalf("acked = %v, want [msg-1]", q.acked)
	}
	if !q.idemDone["grade:job-1"] {
		t.Fatal("idempotency key not marked done")
	}
	if len(q.delayed) != 0 || len(q.dlq) != 0 {
		t.Fatalf("unexpected retry/dlq: %v %v", q.delayed, q.dlq)
	}
}

func TestHandleRetryableFailureSchedulesDelayedRetry(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{err: errors.New("provider unavailable")}
	w := newWorker(q, p, &fakeStatus{})

	w.handle("worker-0", "msg-1", job(1).Marshal())

	if len(q.delayed) != 1 {
		t.Fatalf("delayed = %d entries, want 1", len(q.delayed))
	}
	retry, err := orchestrator.ParseJob(q.delayed[0])
	if err != nil {
		t.Fatalf("parse retried job: %v", err)
	}
	if retry.Attempt != 2 {
		t.Fatalf("retry attempt = %d, want 2", retry.Attempt)
	}
	if len(q.acked) != 1 {
		t.Fatal("original message must still be acked")
	}
	if len(q.dlq) != 0 {
		t.Fatalf("retryable failure must not dead-letter: %v", q.dlq)
	}
}

func TestHandleExhaustedRetriesDeadLetters(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{err: errors.New("still broken")}
	st := &fakeStatus{}
	w := newWorker(q, p, st)

	w.handle("worker-0", "msg-1", job(3).Marshal())

	if len(q.dlq) != 1 {
		t.Fatalf("dlq = %v, want one entry", q.dlq)
	}
	if len(q.delayed) != 0 {
		t.Fatal("exhausted job must not be retried")
	}
	if got := st.set["job-1"].Status; got != "failed" {
		t.Fatalf("status = %q, want failed", got)
	}
}

func TestHandleFatalFailureSkipsRetries(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{err: orchestrator.Fatal(errors.New("password protected"))}
	st := &fakeStatus{}
	w := newWorker(q, p, st)

	w.handle("worker-0", "msg-1", job(1).Marshal())

	if len(q.dlq) != 1 {
		t.Fatalf("dlq = %v, want one entry", q.dlq)
	}
	if len(q.delayed) != 0 {
		t.Fatal("fatal failure must not be retried")
	}
	if got := st.set["job-1"].Status; got != "failed" {
		t.Fatalf("status = %q, want failed", got)
	}
}

func TestHandleCancelledJobIsSkipped(t *testing.T) {
	q := newFakeQueue()
	q.cancelled["job-1"] = true
	p := &fakeProcessor{}
	w := newWorker(q, p, &fakeStatus{})

	w.handle("worker-0", "msg-1", job(1).Marshal())

	if len(p.jobs) != 0 {
		t.Fatal("cancelled job must not be processed")
	}
	if len(q.acked) != 1 {
		t.Fatal("cancelled job must still be acked")
	}
}

func TestHandleDuplicateJobIsSkipped(t *testing.T) {
	q := newFakeQueue()
	q.idemDone["grade:job-1"] = true
	p := &fakeProcessor{}
	w := newWorker(q, p, &fakeStatus{})

	w.handle("worker-0", "msg-1", job(1).Marshal())

	if len(p.jobs) != 0 {
		t.Fatal("duplicate job must not be processed")
	}
	if len(q.acked) != 1 {
		t.Fatal("duplicate job must still be acked")
	}
}

func TestHandleMalformedPayloadDeadLetters(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{}
	w := newWorker(q, p, &fakeStatus{})

	w.handle("worker-0", "msg-1", []byte("{not json"))

	if len(q.dlq) != 1 {
		t.Fatalf("dlq = %v, want one entry", q.dlq)
	}
	if len(p.jobs) != 0 {
		t.Fatal("malformed payload must not reach the processor")
	}
}

func TestStopWaitsForLoops(t *testing.T) {
	q := newFakeQueue()
	w := newWorker(q, &fakeProcessor{}, &fakeStatus{})
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
