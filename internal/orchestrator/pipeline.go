package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/config"
	"github.com/local/exammarker/internal/converter"
	"github.com/local/exammarker/internal/engine"
	"github.com/local/exammarker/internal/extract"
	"github.com/local/exammarker/internal/filetype"
	"github.com/local/exammarker/internal/grading"
	"github.com/local/exammarker/internal/layout"
	mpkg "github.com/local/exammarker/internal/metrics"
	"github.com/local/exammarker/internal/placement"
	"github.com/local/exammarker/internal/render"
	"github.com/local/exammarker/internal/storage"
	"github.com/local/exammarker/internal/store"
	"github.com/local/exammarker/internal/textprobe"
)

// CancelChecker reports whether a job was cancelled externally.
type CancelChecker interface {
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// Pipeline runs one grading job end to end: fetch, convert, extract,
// classify, grade, place annotations, render, persist.
type Pipeline struct {
	cfg        config.Config
	fetcher    *Fetcher
	detector   *filetype.Detector
	converter  *converter.LibreOffice
	extractor  *extract.Extractor
	classifier *layout.Classifier
	grader     *grading.Grader
	engine     *engine.Engine
	annotator  *render.Annotator
	status     StatusStore
	results    *store.ResultStore
	cancels    CancelChecker
	s3         *storage.S3Client
}

// PipelineDeps wires the pipeline's collaborators.
type PipelineDeps struct {
	Config    config.Config
	Fetcher   *Fetcher
	Converter *converter.LibreOffice
	Grader    *grading.Grader
	Engine    *engine.Engine
	Annotator *render.Annotator
	Status    StatusStore
	Results   *store.ResultStore
	Cancels   CancelChecker
	S3        *storage.S3Client
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		cfg:        deps.Config,
		fetcher:    deps.Fetcher,
		detector:   filetype.New(),
		converter:  deps.Converter,
		extractor:  extract.NewExtractor(),
		classifier: layout.NewClassifier(),
		grader:     deps.Grader,
		engine:     deps.Engine,
		annotator:  deps.Annotator,
		status:     deps.Status,
		results:    deps.Results,
		cancels:    deps.Cancels,
		s3:         deps.S3,
	}
}

// fatalError marks a job failure that retrying cannot fix.
type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// Fatal wraps err so the worker sends the job to the DLQ instead of retrying.
func Fatal(err error) error { return fatalError{err: err} }

// IsFatal reports whether err is a non-retryable job failure.
func IsFatal(err error) bool {
	_, ok := err.(fatalError)
	return ok
}

// Process grades one submission. Retryable failures return a plain error;
// failures retrying cannot fix are wrapped with Fatal.
func (p *Pipeline) Process(ctx context.Context, job GradingJob) error {
	started := time.Now()
	jl := log.With().Str("job_id", job.JobID).Logger()

	if cancelled, _ := p.cancels.IsCancelled(ctx, job.JobID); cancelled {
		jl.Info().Msg("job cancelled before processing")
		return nil
	}

	p.progress(ctx, job.JobID, 5, "fetching submission")
	localPath, cleanup, err := p.fetcher.ResolveLocal(ctx, job.FileRef)
	if err != nil {
		return fmt.Errorf("fetch submission: %w", err)
	}
	defer cleanup()

	pdfPath, err := p.ensurePDF(ctx, localPath, job.JobID)
	if err != nil {
		return err
	}

	if ok, diag, perr := textprobe.Check(nil, pdfPath, 0); perr != nil {
		return fmt.Errorf("text probe: %w", perr)
	} else if !ok {
		jl.Warn().Int("total_chars", diag.TotalChars).Int("threshold", diag.Threshold).Msg("submission has no extractable text")
		return Fatal(fmt.Errorf("submission has no extractable text, likely a scanned image"))
	}

	p.progress(ctx, job.JobID, 20, "extracting text")
	doc, err := p.extractor.Extract(pdfPath)
	if err != nil {
		return Fatal(fmt.Errorf("extract submission: %w", err))
	}

	analysis := p.classifier.Classify(doc.Lines)
	if analysis.Confidence == 0 {
		return Fatal(fmt.Errorf("no gradable structure detected in submission"))
	}
	prompts := analysis.Prompts()
	jl.Info().Int("pages", doc.PageCount).Int("questions", len(prompts)).Msg("submission classified")

	keyAnswers, err := p.loadAnswerKey(ctx, job)
	if err != nil {
		jl.Warn().Err(err).Msg("answer key unavailable, grading without it")
	}

	if cancelled, _ := p.cancels.IsCancelled(ctx, job.JobID); cancelled {
		jl.Info().Msg("job cancelled before grading")
		return nil
	}

	p.progress(ctx, job.JobID, 40, "grading answers")
	maxScore := job.MaxScore
	if maxScore <= 0 {
		maxScore = p.cfg.MaxScore
	}
	reqs := make([]grading.Request, 0, len(prompts))
	for _, pr := range prompts {
		answer := ""
		if resp, ok := analysis.ResponseFor(pr.Ordinal); ok {
			answer = resp.Text
		}
		reqs = append(reqs, grading.Request{
			JobID:     job.JobID,
			Ordinal:   pr.Ordinal,
			Question:  pr.Text,
			Answer:    answer,
			KeyAnswer: keyAnswers[pr.Ordinal],
			MaxScore:  maxScore,
		})
	}

	grader := p.grader.WithPrimary(job.Engine)
	grades, err := grader.GradeAll(ctx, reqs)
	if err != nil {
		return fmt.Errorf("grading failed: %w", err)
	}
	for _, g := range grades {
		_ = p.results.SaveGrade(ctx, job.JobID, g, job.Engine, "")
	}

	p.progress(ctx, job.JobID, 70, "placing annotations")
	annReqs := make([]placement.AnnotationRequest, 0, len(grades))
	for _, g := range grades {
		annReqs = append(annReqs, placement.AnnotationRequest{
			Ordinal:  g.Ordinal,
			Text:     annotationText(g),
			Polarity: polarityFor(g),
		})
	}
	result, err := p.engine.Run(ctx, analysis, annReqs, doc.Pages)
	if err != nil {
		return fmt.Errorf("annotation placement: %w", err)
	}
	mpkg.ObserveAttempts(result.Attempts)

	p.progress(ctx, job.JobID, 85, "rendering marked document")
	if err := EnsureResultDir(p.cfg.Storage.ResultDir); err != nil {
		return fmt.Errorf("result dir: %w", err)
	}
	markedPath := MarkedPath(p.cfg.Storage.ResultDir, job.JobID)
	reportPath := ReportPath(p.cfg.Storage.ResultDir, job.JobID)
	if err := p.annotator.MarkDocument(pdfPath, result.Placements, markedPath); err != nil {
		return fmt.Errorf("render marked document: %w", err)
	}
	if err := p.annotator.WriteReport(render.ReportData{
		JobID:       job.JobID,
		StudentName: job.StudentName,
		GradedAt:    time.Now(),
		Grades:      grades,
		Degraded:    result.Degraded,
	}, reportPath); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if p.s3 != nil {
		p.progress(ctx, job.JobID, 95, "uploading artifacts")
		if _, err := UploadArtifacts(ctx, p.s3, p.cfg.S3.EncryptionKey, p.cfg.S3.Prefix, job.JobID, markedPath, reportPath); err != nil {
			jl.Warn().Err(err).Msg("artifact upload failed, results remain local")
		}
	}

	score, max := totals(grades)
	res := store.JobResult{
		MarkedPath: markedPath,
		ReportPath: reportPath,
		Score:      score,
		MaxScore:   max,
		Degraded:   result.Degraded,
		Attempts:   result.Attempts,
	}
	if err := p.results.SaveResult(ctx, job.JobID, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	now := time.Now()
	_ = p.status.Set(ctx, job.JobID, Status{
		Status:   "success",
		Progress: 100,
		Message:  "completed",
		End:      &now,
		Metadata: map[string]any{
			"marked_path":          markedPath,
			"report_path":          reportPath,
			"score":                score,
			"max_score":            max,
			"degraded":             result.Degraded,
			"attempts":             result.Attempts,
			"questions":            len(grades),
			"quality_check_passed": result.Approved,
			"quality_issues":       result.Report.Strings(),
		},
	})
	jl.Info().
		Float64("score", score).
		Float64("max_score", max).
		Bool("degraded", result.Degraded).
		Dur("duration", time.Since(started)).
		Msg("job completed")

	CleanupTemps(time.Duration(p.cfg.Storage.KeepHours) * time.Hour)
	return nil
}

// ensurePDF converts non-PDF submissions before extraction.
func (p *Pipeline) ensurePDF(ctx context.Context, localPath, jobID string) (string, error) {
	info, err := p.detector.Detect(localPath)
	if err != nil {
		return "", fmt.Errorf("detect file type: %w", err)
	}
	if !info.Supported {
		return "", Fatal(fmt.Errorf("unsupported submission type: %s", info.MIMEType))
	}
	if info.IsPDF {
		return localPath, nil
	}
	if p.converter == nil || !p.converter.Ready() {
		return "", Fatal(fmt.Errorf("submission needs conversion but converter is unavailable"))
	}

	p.progress(ctx, jobID, 10, "converting to PDF")
	if err := os.MkdirAll(p.cfg.Storage.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("work dir: %w", err)
	}
	out := filepath.Join(p.cfg.Storage.WorkDir, jobID+".pdf")
	res := p.converter.ConvertToPDF(ctx, converter.Job{
		InputPath:  localPath,
		OutputPath: out,
	})
	if res.IsProtected {
		return "", Fatal(fmt.Errorf("submission is password protected"))
	}
	if !res.Success {
		return "", fmt.Errorf("conversion failed: %s", res.Error)
	}
	return res.OutputPath, nil
}

// loadAnswerKey fetches and classifies the answer key, mapping ordinals to
// expected answers. Missing key is not an error; the grader copes without it.
func (p *Pipeline) loadAnswerKey(ctx context.Context, job GradingJob) (map[int]string, error) {
	if job.KeyRef == "" {
		return nil, nil
	}
	keyPath, cleanup, err := p.fetcher.ResolveLocal(ctx, job.KeyRef)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	keyPDF, err := p.ensurePDF(ctx, keyPath, job.JobID+"_key")
	if err != nil {
		return nil, err
	}
	doc, err := p.extractor.Extract(keyPDF)
	if err != nil {
		return nil, err
	}
	analysis := p.classifier.Classify(doc.Lines)
	out := make(map[int]string)
	for _, pr := range analysis.Prompts() {
		if resp, ok := analysis.ResponseFor(pr.Ordinal); ok {
			out[pr.Ordinal] = resp.Text
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("answer key had no recognizable answers")
	}
	return out, nil
}

func (p *Pipeline) progress(ctx context.Context, jobID string, pct int, msg string) {
	st, ok, err := p.status.Get(ctx, jobID)
	if err != nil || !ok {
		st = Status{}
	}
	st.Status = "processing"
	st.Progress = pct
	st.Message = msg
	_ = p.status.Set(ctx, jobID, st)
}

func annotationText(g grading.Grade) string {
	return fmt.Sprintf("%s/%s: %s",
		strconv.FormatFloat(g.Score, 'f', -1, 64),
		strconv.FormatFloat(g.MaxScore, 'f', -1, 64),
		g.Feedback)
}

func polarityFor(g grading.Grade) placement.Polarity {
	if g.Correct {
		return placement.PolarityCorrect
	}
	return placement.PolarityIncorrect
}

func totals(grades []grading.Grade) (score, max float64) {
	for _, g := range grades {
		score += g.Score
		max += g.MaxScore
	}
	return score, max
}
