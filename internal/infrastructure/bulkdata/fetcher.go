// Package bulkdata downloads and unpacks archives from the USPTO bulk data site.
package bulkdata

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const userAgent = "uspto-pipeline/1.0"

// Source kinds; each gets its own directory under the data dir.
const (
	KindFees        = "fees"
	KindAssignments = "assignments"
)

// Entry is one extracted archive member.
type Entry struct {
	Name string
	Size int64
	Path string
}

// Archive is a downloaded and extracted zip.
type Archive struct {
	Name    string
	ZipPath string
	Dir     string
	Entries []Entry
}

// Largest returns the biggest entry.
func (a *Archive) Largest() (Entry, error) {
	if len(a.Entries) == 0 {
		return Entry{}, errors.New(errors.ErrCodeSourceExtract, "archive is empty").WithDetail(a.Name)
	}
	return a.Entries[len(a.Entries)-1], nil
}

// Smallest returns the smallest entry.
func (a *Archive) Smallest() (Entry, error) {
	if len(a.Entries) == 0 {
		return Entry{}, errors.New(errors.ErrCodeSourceExtract, "archive is empty").WithDetail(a.Name)
	}
	return a.Entries[0], nil
}

// Find returns the entry whose base name equals name.
func (a *Archive) Find(name string) (Entry, bool) {
	for _, e := range a.Entries {
		if filepath.Base(e.Name) == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Fetcher downloads bulk archives. It never retries; callers decide whether a failure is fatal.
type Fetcher struct {
	client  *http.Client
	baseURL string
	dataDir string
	logger  logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher builds a Fetcher rooted at cfg.DataDir.
func NewFetcher(cfg config.PipelineConfig, logger logging.Logger, opts ...Option) *Fetcher {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	f := &Fetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(cfg.BulkBaseURL, "/") + "/",
		dataDir: cfg.DataDir,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL joins a path relative to the bulk base URL.
func (f *Fetcher) URL(rel string) string {
	return f.baseURL + strings.TrimPrefix(rel, "/")
}

// ZipDir is where downloaded zips of kind are kept.
func (f *Fetcher) ZipDir(kind string) string {
	return filepath.Join(f.dataDir, kind, "zips")
}

// LocalZips lists zip file names already present for kind.
func (f *Fetcher) LocalZips(kind string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.ZipDir(kind), "*.zip"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "list local zips")
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}

// Fetch downloads rel into <data_dir>/<kind>/zips/<name> and extracts it into
// <data_dir>/<kind>/<name without .zip>. Existing files are overwritten.
func (f *Fetcher) Fetch(ctx context.Context, kind, rel string) (*Archive, error) {
	name := filepath.Base(rel)
	zipPath := filepath.Join(f.ZipDir(kind), name)
	start := time.Now()

	if err := f.download(ctx, f.URL(rel), zipPath); err != nil {
		return nil, err
	}
	dir := filepath.Join(f.dataDir, kind, strings.TrimSuffix(name, filepath.Ext(name)))
	entries, err := Extract(zipPath, dir)
	if err != nil {
		return nil, err
	}

	f.logger.Info("archive fetched",
		logging.String("archive", name),
		logging.Int("entries", len(entries)),
		logging.Duration("elapsed", time.Since(start)))
	return &Archive{Name: name, ZipPath: zipPath, Dir: dir, Entries: entries}, nil
}

func (f *Fetcher) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceDownload, "build request").WithDetail(url)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceDownload, "download failed").WithDetail(url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrCodeSourceDownload, "unexpected status").
			WithDetail(fmt.Sprintf("%s: %d", url, resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceDownload, "create zip dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceDownload, "create temp file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceDownload, "write archive").WithDetail(url)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceDownload, "move archive into place")
	}
	f.logger.Debug("archive downloaded", logging.String("url", url), logging.Int64("bytes", n))
	return nil
}

// Extract unpacks zipPath into dir and returns the regular-file entries
// sorted by size ascending, then name.
func Extract(zipPath, dir string) ([]Entry, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceExtract, "open zip").WithDetail(zipPath)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceExtract, "resolve extract dir")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceExtract, "create extract dir")
	}

	var entries []Entry
	for _, zf := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(zf.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, errors.New(errors.ErrCodeSourceExtract, "entry escapes extract dir").WithDetail(zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSourceExtract, "create dir")
			}
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: zf.Name, Size: int64(zf.UncompressedSize64), Path: target})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Size != entries[j].Size {
			return entries[i].Size < entries[j].Size
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceExtract, "create dir")
	}
	rc, err := zf.Open()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceExtract, "open entry").WithDetail(zf.Name)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceExtract, "create entry file").WithDetail(zf.Name)
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceExtract, "write entry").WithDetail(zf.Name)
	}
	return nil
}
