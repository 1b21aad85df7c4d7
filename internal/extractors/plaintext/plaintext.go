package plaintext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/toricodesthings/doc-insight-service/internal/extract"
)

var blankRuns = regexp.MustCompile(`\n{4,}`)

// Extractor reads plain text and markdown files as they are. It is also the
// fallback for any text/* MIME type.
type Extractor struct {
	maxBytes int64
}

func New(maxBytes int64) *Extractor {
	return &Extractor{maxBytes: maxBytes}
}

func (e *Extractor) Name() string { return "text" }

func (e *Extractor) MaxFileSize() int64 { return e.maxBytes }

func (e *Extractor) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown"}
}

func (e *Extractor) SupportedExtensions() []string {
	return []string{".txt", ".text", ".log", ".csv", ".md", ".mdx", ".markdown"}
}

func (e *Extractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return extract.Result{}, err
	}

	b, err := os.ReadFile(job.LocalPath)
	if err != nil {
		return extract.Result{}, fmt.Errorf("read: %w", err)
	}

	text := string(b)
	fileType := "text/plain"
	switch strings.ToLower(filepath.Ext(job.FileName)) {
	case ".md", ".mdx", ".markdown":
		text = stripFrontMatter(text)
		fileType = "text/markdown"
	}

	return extract.Result{
		Text:     normalizeText(text),
		Method:   "native",
		FileType: fileType,
		MIMEType: job.MIMEType,
	}, nil
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n\n")
	return strings.TrimSpace(s)
}

func stripFrontMatter(s string) string {
	if !strings.HasPrefix(s, "---\n") {
		return s
	}
	idx := strings.Index(s[4:], "\n---\n")
	if idx < 0 {
		return s
	}
	return s[4+idx+5:]
}
