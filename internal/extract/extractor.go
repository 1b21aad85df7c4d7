package extract

import "context"

// Extractor turns one downloaded file into raw document text.
type Extractor interface {
	Extract(ctx context.Context, job Job) (Result, error)
	SupportedTypes() []string
	SupportedExtensions() []string
	Name() string
	MaxFileSize() int64
}
