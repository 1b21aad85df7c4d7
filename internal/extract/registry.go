package extract

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// Registry maps file extensions and MIME types to extractors. Later
// registrations win for the same key.
type Registry struct {
	byMIME      map[string]Extractor
	byExtension map[string]Extractor
	extractors  []Extractor
}

func NewRegistry() *Registry {
	return &Registry{
		byMIME:      make(map[string]Extractor),
		byExtension: make(map[string]Extractor),
	}
}

func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	for _, mt := range e.SupportedTypes() {
		if key := normalizeKey(mt); key != "" {
			r.byMIME[key] = e
		}
	}
	for _, ext := range e.SupportedExtensions() {
		if key := normalizeKey(ext); key != "" {
			r.byExtension[key] = e
		}
	}
}

// Formats lists the names of registered extractors in registration order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.extractors))
	for _, e := range r.extractors {
		out = append(out, e.Name())
	}
	return out
}

// Resolve picks an extractor by file extension first, then by sniffed MIME
// type. Unknown text/* types fall back to the text/plain extractor.
func (r *Registry) Resolve(mimeType, extension string) (Extractor, error) {
	mt := normalizeKey(mimeType)
	if i := strings.Index(mt, ";"); i > 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	if e, ok := r.byExtension[normalizeKey(extension)]; ok {
		return e, nil
	}
	if e, ok := r.byMIME[mt]; ok {
		return e, nil
	}
	if strings.HasPrefix(mt, "text/") {
		if e, ok := r.byMIME["text/plain"]; ok {
			return e, nil
		}
	}

	return nil, fmt.Errorf("%w: mime=%q extension=%q", ErrUnsupportedFormat, mimeType, extension)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
