package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/config"
	"github.com/local/exammarker/internal/statuscheck"
	"github.com/local/exammarker/internal/store"
)

// Queue abstracts the job queue the API enqueues into.
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// Status mirrors the persisted job state.
type Status struct {
	Status   string
	Progress int
	Message  string
	Start    *time.Time
	End      *time.Time
	Metadata map[string]any
}

// StatusStore persists job state between the API and the workers.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st Status) error
	Get(ctx context.Context, jobID string) (Status, bool, error)
}

// ResultGetter fetches final job artifacts for downloads.
type ResultGetter interface {
	GetResult(ctx context.Context, jobID string) (store.JobResult, bool, error)
}

// Dependencies wires the orchestrator's collaborators.
type Dependencies struct {
	Queue   Queue
	Status  StatusStore
	Results ResultGetter
	Checker *statuscheck.Checker
}

// Orchestrator is the HTTP API: it accepts submissions, enqueues grading
// jobs and serves progress and finished artifacts.
type Orchestrator struct {
	deps Dependencies
	cfg  config.Config
}

func New(deps Dependencies, cfg config.Config) *Orchestrator {
	return &Orchestrator{deps: deps, cfg: cfg}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", o.handleHealth)
	mux.HandleFunc("/status", o.handleStatusCheck)
	mux.HandleFunc("/grade_submission", o.handleGrade)
	mux.HandleFunc("/grade_upload", o.handleGradeUpload)
	mux.HandleFunc("/progress/", o.handleProgress)
	mux.HandleFunc("/download_marked/", o.handleDownloadMarked)
	mux.HandleFunc("/download_report/", o.handleDownloadReport)
	mux.HandleFunc("/internal/job_done", o.handleJobDone)
	mux.HandleFunc("/webhook/cancel_job", o.handleCancelJob)
}

func (o *Orchestrator) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (o *Orchestrator) handleStatusCheck(w http.ResponseWriter, r *http.Request) {
	if o.deps.Checker == nil {
		http.Error(w, "status checks not configured", http.StatusNotImplemented)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(o.deps.Checker.Summary(r.Context()))
}

type gradeReq struct {
	FilePath    string  `json:"file_path"`
	FileURL     string  `json:"file_url"`
	KeyPath     string  `json:"key_path"`
	StudentName string  `json:"student_name"`
	MaxScore    float64 `json:"max_score"`
	AIEngine    string  `json:"ai_engine"`
	Source      string  `json:"source"`
}

type gradeResp struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// handleGrade creates a grading job for a submission already reachable by
// reference: s3://, http(s):// or a path local to the service.
func (o *Orchestrator) handleGrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req gradeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	fileRef := req.FilePath
	if fileRef == "" {
		fileRef = req.FileURL
	}
	if fileRef == "" {
		http.Error(w, "missing file_path or file_url", http.StatusBadRequest)
		return
	}
	fileRef = o.normalizeRef(fileRef)
	keyRef := ""
	if req.KeyPath != "" {
		keyRef = o.normalizeRef(req.KeyPath)
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	job := GradingJob{
		JobID:          uuid.NewString(),
		FileRef:        fileRef,
		KeyRef:         keyRef,
		StudentName:    req.StudentName,
		Engine:         req.AIEngine,
		MaxScore:       req.MaxScore,
		Source:         source,
		IdempotencyKey: "",
		Attempt:        1,
	}
	job.IdempotencyKey = fmt.Sprintf("grade:%s", job.JobID)

	if err := o.createJob(r.Context(), job); err != nil {
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(gradeResp{Status: "ok", JobID: job.JobID, Message: "Grading job created"})
}

// handleGradeUpload accepts a multipart submission (plus optional answer key)
// from the dashboard, persists it locally and enqueues the job.
func (o *Orchestrator) handleGradeUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	maxMem := int64(o.cfg.HTTP.MaxUploadSizeMB) << 20
	if maxMem <= 0 {
		maxMem = 64 << 20
	}
	if err := r.ParseMultipartForm(maxMem); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	jobID := uuid.NewString()
	uploadDir := filepath.Join(o.cfg.Storage.WorkDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		http.Error(w, "cannot create upload dir", http.StatusInternalServerError)
		return
	}

	filePath, err := o.saveUpload(r, "file", uploadDir, jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	keyPath, _ := o.saveUpload(r, "answer_key", uploadDir, jobID+"_key")

	maxScore := 0.0
	if v := r.FormValue("max_score"); v != "" {
		maxScore, _ = strconv.ParseFloat(v, 64)
	}

	job := GradingJob{
		JobID:          jobID,
		FileRef:        "file://" + filePath,
		StudentName:    r.FormValue("student_name"),
		Engine:         r.FormValue("ai_engine"),
		MaxScore:       maxScore,
		Source:         "upload",
		IdempotencyKey: fmt.Sprintf("grade:%s", jobID),
		Attempt:        1,
	}
	if keyPath != "" {
		job.KeyRef = "file://" + keyPath
	}

	if err := o.createJob(r.Context(), job); err != nil {
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(gradeResp{Status: "ok", JobID: jobID, Message: "Upload job created"})
}

func (o *Orchestrator) saveUpload(r *http.Request, field, dir, prefix string) (string, error) {
	file, hdr, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("missing %s", field)
	}
	defer file.Close()
	name := hdr.Filename
	if name == "" {
		name = "upload.pdf"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s", prefix, filepath.Base(name)))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("cannot save %s", field)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return "", fmt.Errorf("write failed for %s", field)
	}
	return path, nil
}

// createJob records the queued status, enqueues the payload and starts the
// completion monitor.
func (o *Orchestrator) createJob(ctx context.Context, job GradingJob) error {
	start := time.Now()
	_ = o.deps.Status.Set(ctx, job.JobID, Status{
		Status:   "queued",
		Progress: 0,
		Message:  "queued",
		Start:    &start,
		Metadata: map[string]any{
			"file_ref": job.FileRef,
			"student":  job.StudentName,
			"source":   job.Source,
		},
	})
	if err := o.deps.Queue.Enqueue(ctx, job.Marshal()); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("enqueue failed")
		return err
	}
	log.Info().Str("job_id", job.JobID).Str("file", job.FileRef).Str("source", job.Source).Msg("grading job created")
	go o.monitorJob(job.JobID)
	return nil
}

func (o *Orchestrator) normalizeRef(ref string) string {
	if strings.HasPrefix(ref, "s3://") ||
		strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "file://") {
		return ref
	}
	if o.cfg.S3.Bucket != "" {
		return fmt.Sprintf("s3://%s/%s", o.cfg.S3.Bucket, strings.TrimPrefix(ref, "/"))
	}
	return ref
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/progress/")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    st.Status == "success",
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	})
}

func (o *Orchestrator) handleDownloadMarked(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/download_marked/")
	o.serveArtifact(w, r, id, "marked")
}

func (o *Orchestrator) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/download_report/")
	o.serveArtifact(w, r, id, "report")
}

func (o *Orchestrator) serveArtifact(w http.ResponseWriter, r *http.Request, jobID, kind string) {
	res, ok, err := o.deps.Results.GetResult(r.Context(), jobID)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		st, stOK, _ := o.deps.Status.Get(r.Context(), jobID)
		if stOK && st.Status != "failed" && st.Status != "cancelled" {
			http.Error(w, "not ready", http.StatusAccepted)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	path := res.MarkedPath
	if kind == "report" {
		path = res.ReportPath
	}
	if path == "" {
		http.Error(w, "artifact not available", http.StatusNotFound)
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "failed to read artifact", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.pdf", jobID, kind))
	_, _ = w.Write(b)
}

// handleJobDone lets a worker mark a job finished out of band.
func (o *Orchestrator) handleJobDone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}
	st, ok, err := o.deps.Status.Get(r.Context(), jobID)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	now := time.Now()
	st.Status = "success"
	st.Progress = 100
	st.Message = "completed"
	st.End = &now
	_ = o.deps.Status.Set(r.Context(), jobID, st)
	w.WriteHeader(http.StatusNoContent)
}

type cancelReq struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	st, ok, _ := o.deps.Status.Get(r.Context(), req.JobID)
	if !ok {
		st = Status{}
	}
	st.Status = "cancelled"
	st.Progress = 0
	if req.Reason != "" {
		st.Message = fmt.Sprintf("Cancelled: %s", req.Reason)
	} else {
		st.Message = "Cancelled"
	}
	now := time.Now()
	st.End = &now
	_ = o.deps.Status.Set(r.Context(), req.JobID, st)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "job_id": req.JobID, "status": "cancelled"})
}
