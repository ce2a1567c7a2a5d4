package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTemps removes temporary files created while fetching and rasterizing
// submissions, once they are older than maxAge.
func CleanupTemps(maxAge time.Duration) {
	dir := os.TempDir()
	now := time.Now()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "pdfdl-") &&
			!strings.HasPrefix(name, "s3sub-") &&
			!strings.HasPrefix(name, "exammarker-pages-") &&
			!strings.HasPrefix(name, "soffice-profile-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			_ = os.RemoveAll(filepath.Join(dir, name))
		}
	}
}
