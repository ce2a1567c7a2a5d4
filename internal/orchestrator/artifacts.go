package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/storage"
)

// MarkedPath returns where the annotated PDF for a job is stored locally.
func MarkedPath(resultDir, jobID string) string {
	return filepath.Join(resultDir, fmt.Sprintf("%s_marked.pdf", jobID))
}

// ReportPath returns where the grade report PDF for a job is stored locally.
func ReportPath(resultDir, jobID string) string {
	return filepath.Join(resultDir, fmt.Sprintf("%s_report.pdf", jobID))
}

// EnsureResultDir creates the results directory if missing.
func EnsureResultDir(resultDir string) error {
	return os.MkdirAll(resultDir, 0o755)
}

// UploadArtifacts copies the marked document and report to S3 under
// prefix/jobID/. Returns the object keys written. A nil client is a no-op.
func UploadArtifacts(ctx context.Context, s3c *storage.S3Client, password, prefix, jobID, markedPath, reportPath string) (map[string]string, error) {
	if s3c == nil {
		return nil, nil
	}
	out := make(map[string]string, 2)
	for name, path := range map[string]string{"marked": markedPath, "report": reportPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			return out, fmt.Errorf("read %s artifact: %w", name, err)
		}
		key := fmt.Sprintf("%s%s/%s.pdf", prefix, jobID, name)
		if err := s3c.StoreArtifact(ctx, key, data, password, "application/pdf"); err != nil {
			return out, fmt.Errorf("upload %s artifact: %w", name, err)
		}
		out[name] = key
		log.Info().Str("job_id", jobID).Str("key", key).Msg("artifact uploaded")
	}
	return out, nil
}
