package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

type RouterConfig struct {
	MaxFileBytes    int64
	MaxPageBytes    int64
	DownloadTimeout time.Duration
	// PageTimeout bounds a web page fetch. Zero falls back to DownloadTimeout.
	PageTimeout time.Duration
	// PageExtractor turns a fetched web page into text. Required for
	// FromWebPage.
	PageExtractor Extractor
}

// Router obtains raw document text from a file URL, an uploaded body or a web
// page, choosing the extractor for files through the registry.
type Router struct {
	registry *Registry
	cfg      RouterConfig

	onSuccess func(fileType string, fileSize int64, duration time.Duration)
}

func NewRouter(registry *Registry, cfg RouterConfig) *Router {
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = cfg.MaxFileBytes
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = cfg.DownloadTimeout
	}
	return &Router{registry: registry, cfg: cfg}
}

// SetSuccessHook registers fn to be called after every successful extraction.
func (r *Router) SetSuccessHook(fn func(fileType string, fileSize int64, duration time.Duration)) {
	r.onSuccess = fn
}

// FromURL downloads a document file and extracts its text.
func (r *Router) FromURL(ctx context.Context, rawURL, fileName string) (Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Result{}, fmt.Errorf("document URL required")
	}
	start := time.Now()
	fileName = defaultFileName(fileName, rawURL)

	dl, err := DownloadToTemp(ctx, rawURL, fileName, r.cfg.MaxFileBytes, r.cfg.DownloadTimeout)
	if err != nil {
		return Result{}, err
	}
	defer dl.Cleanup()

	ext, err := r.resolve(dl, fileName)
	if err != nil {
		return Result{}, err
	}
	return r.run(ctx, ext, dl, fileName, rawURL, start)
}

// FromUpload stores body and extracts its text. fileName supplies the
// extension used to pick an extractor.
func (r *Router) FromUpload(ctx context.Context, body io.Reader, fileName string) (Result, error) {
	start := time.Now()
	fileName = defaultFileName(fileName, "")

	dl, err := SaveBodyToTemp(body, fileName, r.cfg.MaxFileBytes)
	if err != nil {
		return Result{}, err
	}
	defer dl.Cleanup()

	ext, err := r.resolve(dl, fileName)
	if err != nil {
		return Result{}, err
	}
	return r.run(ctx, ext, dl, fileName, "", start)
}

// FromWebPage fetches an HTML page and extracts its paragraph text.
func (r *Router) FromWebPage(ctx context.Context, rawURL string) (Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Result{}, fmt.Errorf("page URL required")
	}
	if r.cfg.PageExtractor == nil {
		return Result{}, errors.New("web page extraction not configured")
	}
	start := time.Now()

	dl, err := DownloadToTemp(ctx, rawURL, "page.html", r.cfg.MaxPageBytes, r.cfg.PageTimeout)
	if err != nil {
		return Result{}, err
	}
	defer dl.Cleanup()

	return r.run(ctx, r.cfg.PageExtractor, dl, "page.html", rawURL, start)
}

func (r *Router) resolve(dl DownloadedFile, fileName string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	e, err := r.registry.Resolve(dl.MIMEType, ext)
	if err != nil {
		return nil, err
	}
	if max := e.MaxFileSize(); max > 0 && dl.Size > max {
		return nil, fmt.Errorf("file exceeds %s limit (%dMB)", e.Name(), max/(1<<20))
	}
	return e, nil
}

func (r *Router) run(ctx context.Context, e Extractor, dl DownloadedFile, fileName, sourceURL string, start time.Time) (Result, error) {
	job := Job{
		SourceURL: sourceURL,
		LocalPath: dl.Path,
		FileName:  fileName,
		MIMEType:  dl.MIMEType,
		FileSize:  dl.Size,
	}

	res, err := e.Extract(ctx, job)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", e.Name(), err)
	}
	if res.MIMEType == "" {
		res.MIMEType = dl.MIMEType
	}
	if res.FileType == "" {
		res.FileType = e.Name()
	}

	if r.onSuccess != nil {
		r.onSuccess(res.FileType, dl.Size, time.Since(start))
	}
	return res, nil
}

// defaultFileName falls back to the last path segment of the URL, then to a
// generic name.
func defaultFileName(fileName, rawURL string) string {
	if name := strings.TrimSpace(fileName); name != "" {
		return name
	}
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	return "input.bin"
}
