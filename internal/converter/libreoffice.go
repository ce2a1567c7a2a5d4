package converter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LibreOffice converts word-processing submissions to PDF before grading.
// Every conversion runs its own headless process with a throwaway profile
// directory, so concurrent jobs cannot corrupt each other's state.
type LibreOffice struct {
	mu         sync.RWMutex
	ready      bool
	maxWorkers int
	semaphore  chan struct{}
}

// Job describes a single conversion request.
type Job struct {
	InputPath  string
	OutputPath string
	Timeout    time.Duration
}

// Result carries the outcome of a conversion.
type Result struct {
	Success     bool
	OutputPath  string
	Error       string
	Duration    time.Duration
	IsProtected bool
}

// NewLibreOffice creates a converter limited to maxWorkers concurrent jobs.
func NewLibreOffice(maxWorkers int) *LibreOffice {
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	return &LibreOffice{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Initialize verifies LibreOffice is installed and usable.
func (l *LibreOffice) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	out, err := exec.Command("soffice", "--version").Output()
	if err != nil {
		return fmt.Errorf("LibreOffice not found in PATH: %w", err)
	}
	l.ready = true
	log.Info().Str("version", strings.TrimSpace(string(out))).Int("max_workers", l.maxWorkers).Msg("LibreOffice converter ready")
	return nil
}

// Ready reports whether Initialize succeeded.
func (l *LibreOffice) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// ConvertToPDF converts a submission document to PDF.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, job Job) Result {
	start := time.Now()

	l.semaphore <- struct{}{}
	defer func() { <-l.semaphore }()

	log.Info().Str("input", job.InputPath).Str("output", job.OutputPath).Msg("converting submission to PDF")

	if err := l.validateInput(job.InputPath); err != nil {
		return Result{Error: fmt.Sprintf("input validation failed: %v", err), Duration: time.Since(start)}
	}

	if l.isPasswordProtected(job.InputPath) {
		return Result{
			Error:       "document is password protected",
			Duration:    time.Since(start),
			IsProtected: true,
		}
	}

	// Each run gets its own UserInstallation; LibreOffice refuses to share
	// one profile across concurrent processes.
	profileDir := filepath.Join(os.TempDir(), "soffice-profile-"+uuid.New().String())
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return Result{Error: fmt.Sprintf("failed to create profile directory: %v", err), Duration: time.Since(start)}
	}
	defer os.RemoveAll(profileDir)

	outputDir := filepath.Dir(job.OutputPath)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{Error: fmt.Sprintf("failed to create output directory: %v", err), Duration: time.Since(start)}
	}

	timeout := job.Timeout
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(
		runCtx,
		"soffice",
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outputDir,
		job.InputPath,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{Error: fmt.Sprintf("conversion timeout after %v", timeout), Duration: time.Since(start)}
		}
		return Result{Error: fmt.Sprintf("conversion failed: %v", err), Duration: time.Since(start)}
	}

	// LibreOffice names the output after the input file.
	produced := l.producedPath(job.InputPath, outputDir)
	final := job.OutputPath
	if produced != final {
		if _, err := os.Stat(produced); err == nil {
			if err := os.Rename(produced, final); err != nil {
				log.Warn().Err(err).Str("from", produced).Str("to", final).Msg("failed to rename converted file")
				final = produced
			}
		}
	}

	if _, err := os.Stat(final); err != nil {
		return Result{Error: fmt.Sprintf("output file not created: %v", err), Duration: time.Since(start)}
	}

	log.Info().Str("output", final).Dur("duration", time.Since(start)).Msg("conversion successful")
	return Result{Success: true, OutputPath: final, Duration: time.Since(start)}
}

func (l *LibreOffice) validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file not readable: %w", err)
	}
	f.Close()
	return nil
}

func (l *LibreOffice) isPasswordProtected(path string) bool {
	out, err := exec.Command("soffice", "--headless", "--cat", path).CombinedOutput()
	if err != nil {
		s := strings.ToLower(string(out))
		return strings.Contains(s, "password") || strings.Contains(s, "encrypted") || strings.Contains(s, "protected")
	}
	return false
}

func (l *LibreOffice) producedPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, name+".pdf")
}

// SupportedExtensions lists the submission formats the converter accepts.
func (l *LibreOffice) SupportedExtensions() []string {
	return []string{"doc", "docx", "rtf", "odt", "txt"}
}

// IsSupported checks if a file extension can be converted to PDF.
func (l *LibreOffice) IsSupported(extension string) bool {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	for _, s := range l.SupportedExtensions() {
		if ext == s {
			return true
		}
	}
	return false
}
