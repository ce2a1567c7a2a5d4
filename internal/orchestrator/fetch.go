package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/storage"
)

// Fetcher resolves a submission reference to a local file. S3 objects may be
// encrypted at rest; the configured password is applied transparently.
type Fetcher struct {
	s3       *storage.S3Client
	password string
}

func NewFetcher(s3 *storage.S3Client, password string) *Fetcher {
	return &Fetcher{s3: s3, password: password}
}

// ResolveLocal downloads ref to a temp file when it is remote and returns a
// local path plus a cleanup func. Local refs are returned as-is with a no-op
// cleanup.
func (f *Fetcher) ResolveLocal(ctx context.Context, ref string) (string, func(), error) {
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		p, err := f.downloadS3(ctx, ref)
		if err != nil {
			return "", nil, err
		}
		return p, func() { os.Remove(p) }, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		p, err := downloadHTTP(ctx, ref)
		if err != nil {
			return "", nil, err
		}
		return p, func() { os.Remove(p) }, nil
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), func() {}, nil
	default:
		return ref, func() {}, nil
	}
}

func (f *Fetcher) downloadS3(ctx context.Context, ref string) (string, error) {
	if f.s3 == nil {
		return "", fmt.Errorf("s3 not configured, cannot fetch %s", ref)
	}
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 {
		return "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	key := path[slash+1:]

	data, meta, err := f.s3.FetchSubmission(ctx, key, f.password)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(key)
	if ext == "" && meta != nil && meta.OriginalName != "" {
		ext = filepath.Ext(meta.OriginalName)
	}
	if ext == "" {
		ext = ".pdf"
	}
	tmp, err := os.CreateTemp("", "s3sub-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := tmp.Write(data); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	log.Info().Str("key", key).Int("bytes", len(data)).Bool("encrypted", meta != nil && meta.Encrypted).Msg("fetched submission from s3")
	return tmp.Name(), nil
}

func downloadHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d fetching %s", resp.StatusCode, url)
	}
	ext := filepath.Ext(url)
	if ext == "" || len(ext) > 5 {
		ext = ".pdf"
	}
	tmp, err := os.CreateTemp("", "pdfdl-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
