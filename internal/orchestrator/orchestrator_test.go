package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/local/exammarker/internal/config"
	"github.com/local/exammarker/internal/store"
)

type memQueue struct {
	mu        sync.Mutex
	enqueued  [][]byte
	cancelled map[string]bool
	failNext  bool
}

func newMemQueue() *memQueue { return &memQueue{cancelled: map[string]bool{}} }

func (q *memQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext {
		return context.DeadlineExceeded
	}
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func (q *memQueue) CancelJob(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[jobID] = true
	return nil
}

func (q *memQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[jobID], nil
}

type memStatus struct {
	mu sync.Mutex
	m  map[string]Status
}

func newMemStatus() *memStatus { return &memStatus{m: map[string]Status{}} }

func (s *memStatus) Set(ctx context.Context, jobID string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[jobID] = st
	return nil
}

func (s *memStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[jobID]
	return st, ok, nil
}

type memResults struct {
	mu sync.Mutex
	m  map[string]store.JobResult
}

func newMemResults() *memResults { return &memResults{m: map[string]store.JobResult{}} }

func (r *memResults) GetResult(ctx context.Context, jobID string) (store.JobResult, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.m[jobID]
	return res, ok, nil
}

func testOrchestrator(t *testing.T) (*Orchestrator, *memQueue, *memStatus, *memResults) {
	t.Helper()
	q := newMemQueue()
	st := newMemStatus()
	res := newMemResults()
	cfg := config.Config{}
	cfg.Storage.WorkDir = t.TempDir()
	cfg.Worker.JobTotalTimeout = time.Minute
	o := New(Dependencies{Queue: q, Status: st, Results: res}, cfg)
	return o, q, st, res
}

func TestGradeSubmissionCreatesJob(t *testing.T) {
	o, q, st, _ := testOrchestrator(t)

	body, _ := json.Marshal(map[string]any{
		"file_path":    "file:///tmp/exam.pdf",
		"student_name": "Ada",
		"max_score":    10,
	})
	req := httptest.NewRequest(http.MethodPost, "/grade_submission", bytes.NewReader(body))
	w := httptest.NewRecorder()
	o.handleGrade(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp gradeResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("response missing job_id")
	}

	q.mu.Lock()
	n := len(q.enqueued)
	payload := q.enqueued[0]
	q.mu.Unlock()
	if n != 1 {
		t.Fatalf("enqueued %d payloads, want 1", n)
	}
	job, err := ParseJob(payload)
	if err != nil {
		t.Fatalf("parse enqueued job: %v", err)
	}
	if job.JobID != resp.JobID || job.FileRef != "file:///tmp/exam.pdf" || job.StudentName != "Ada" {
		t.Fatalf("unexpected job payload: %+v", job)
	}
	if job.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", job.Attempt)
	}

	got, ok, _ := st.Get(context.Background(), resp.JobID)
	if !ok || got.Status != "queued" {
		t.Fatalf("status = %+v ok=%v, want queued", got, ok)
	}
}

func TestGradeSubmissionMissingFile(t *testing.T) {
	o, _, _, _ := testOrchestrator(t)
	req := httptest.NewRequest(http.MethodPost, "/grade_submission", strings.NewReader(`{"student_name":"Ada"}`))
	w := httptest.NewRecorder()
	o.handleGrade(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGradeSubmissionQueueDown(t *testing.T) {
	o, q, _, _ := testOrchestrator(t)
	q.failNext = true
	req := httptest.NewRequest(http.MethodPost, "/grade_submission",
		strings.NewReader(`{"file_path":"file:///tmp/exam.pdf"}`))
	w := httptest.NewRecorder()
	o.handleGrade(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestNormalizeRefPrefixesBucket(t *testing.T) {
	o, _, _, _ := testOrchestrator(t)
	o.cfg.S3.Bucket = "exams"
	if got := o.normalizeRef("submissions/exam.pdf"); got != "s3://exams/submissions/exam.pdf" {
		t.Fatalf("normalizeRef = %q", got)
	}
	if got := o.normalizeRef("s3://other/exam.pdf"); got != "s3://other/exam.pdf" {
		t.Fatalf("explicit s3 ref must pass through, got %q", got)
	}
	if got := o.normalizeRef("file:///tmp/x.pdf"); got != "file:///tmp/x.pdf" {
		t.Fatalf("file ref must pass through, got %q", got)
	}
}

func TestProgressEndpoint(t *testing.T) {
	o, _, st, _ := testOrchestrator(t)
	_ = st.Set(context.Background(), "job-9", Status{Status: "processing", Progress: 40, Message: "grading answers"})

	req := httptest.NewRequest(http.MethodGet, "/progress/job-9", nil)
	w := httptest.NewRecorder()
	o.handleProgress(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "processing" || body["progress"] != float64(40) {
		t.Fatalf("unexpected body: %v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/progress/unknown", nil)
	w = httptest.NewRecorder()
	o.handleProgress(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown job: status = %d, want 404", w.Code)
	}
}

func TestDownloadMarkedServesArtifact(t *testing.T) {
	o, _, _, res := testOrchestrator(t)
	dir := t.TempDir()
	marked := filepath.Join(dir, "m.pdf")
	if err := os.WriteFile(marked, []byte("%PDF-1.4 marked"), 0o644); err != nil {
		t.Fatal(err)
	}
	res.m["job-3"] = store.JobResult{MarkedPath: marked, ReportPath: filepath.Join(dir, "r.pdf")}

	req := httptest.NewRequest(http.MethodGet, "/download_marked/job-3", nil)
	w := httptest.NewRecorder()
	o.handleDownloadMarked(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content-type = %q", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("marked")) {
		t.Fatal("body does not contain artifact")
	}
}

func TestDownloadNotReadyReturnsAccepted(t *testing.T) {
	o, _, st, _ := testOrchestrator(t)
	_ = st.Set(context.Background(), "job-4", Status{Status: "processing", Progress: 50})

	req := httptest.NewRequest(http.MethodGet, "/download_report/job-4", nil)
	w := httptest.NewRecorder()
	o.handleDownloadReport(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
}

func TestCancelJob(t *testing.T) {
	o, q, st, _ := testOrchestrator(t)
	_ = st.Set(context.Background(), "job-5", Status{Status: "processing"})

	body := strings.NewReader(`{"job_id":"job-5","reason":"teacher request"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/cancel_job", body)
	w := httptest.NewRecorder()
	o.handleCancelJob(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !q.cancelled["job-5"] {
		t.Fatal("queue cancel not recorded")
	}
	got, _, _ := st.Get(context.Background(), "job-5")
	if got.Status != "cancelled" || !strings.Contains(got.Message, "teacher request") {
		t.Fatalf("status after cancel: %+v", got)
	}
}

func TestGradeUploadMultipart(t *testing.T) {
	o, q, _, _ := testOrchestrator(t)

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, map[string][]byte{"file": []byte("%PDF-1.4 exam")},
		map[string]string{"student_name": "Grace", "max_score": "5"})

	req := httptest.NewRequest(http.MethodPost, "/grade_upload", &buf)
	req.Header.Set("Content-Type", mw)
	w := httptest.NewRecorder()
	o.handleGradeUpload(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d, want 1", len(q.enqueued))
	}
	job, _ := ParseJob(q.enqueued[0])
	if !strings.HasPrefix(job.FileRef, "file://") {
		t.Fatalf("upload job FileRef = %q", job.FileRef)
	}
	if job.StudentName != "Grace" || job.MaxScore != 5 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Source != "upload" {
		t.Fatalf("source = %q, want upload", job.Source)
	}
}

func TestJobPayloadRoundtrip(t *testing.T) {
	in := GradingJob{
		JobID:       "j",
		FileRef:     "s3://exams/a.pdf",
		KeyRef:      "s3://exams/key.pdf",
		StudentName: "Alan",
		MaxScore:    10,
		Source:      "api",
		Attempt:     2,
	}
	out, err := ParseJob(in.Marshal())
	if err != nil {
		t.Fatalf("roundtrip: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

// newMultipart builds a multipart body and returns its content type.
func newMultipart(t *testing.T, buf *bytes.Buffer, files map[string][]byte, fields map[string]string) string {
	t.Helper()
	mw := multipart.NewWriter(buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".pdf")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	return mw.FormDataContentType()
}
