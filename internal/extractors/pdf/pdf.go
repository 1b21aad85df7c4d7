package pdf

import (
	"context"
	"fmt"
	"strconv"

	"github.com/toricodesthings/doc-insight-service/internal/extract"
	"github.com/toricodesthings/doc-insight-service/internal/poppler"
)

type Extractor struct {
	cfg      poppler.Config
	maxBytes int64
}

func New(cfg poppler.Config, maxBytes int64) *Extractor {
	return &Extractor{cfg: cfg, maxBytes: maxBytes}
}

func (e *Extractor) Name() string { return "document/pdf" }

func (e *Extractor) MaxFileSize() int64 { return e.maxBytes }

func (e *Extractor) SupportedTypes() []string {
	return []string{"application/pdf"}
}

func (e *Extractor) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Extract validates the file with pdfinfo, then pulls the text layer with
// pdftotext. Scanned PDFs without a text layer yield empty text.
func (e *Extractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	info, err := poppler.GetInfo(ctx, job.LocalPath, e.cfg)
	if err != nil {
		return extract.Result{}, err
	}
	if info.Encrypted {
		return extract.Result{}, poppler.ErrEncrypted
	}

	text, err := poppler.ExtractText(ctx, job.LocalPath, e.cfg)
	if err != nil {
		return extract.Result{}, fmt.Errorf("pdf text: %w", err)
	}

	meta := map[string]string{"pages": strconv.Itoa(info.Pages)}
	if info.Title != "" {
		meta["title"] = info.Title
	}
	if info.Author != "" {
		meta["author"] = info.Author
	}

	return extract.Result{
		Text:     text,
		Method:   "pdftotext",
		FileType: e.Name(),
		MIMEType: job.MIMEType,
		Metadata: meta,
	}, nil
}
