package extract

// Job describes a file already saved to local disk.
type Job struct {
	SourceURL string
	LocalPath string
	FileName  string
	MIMEType  string
	FileSize  int64
}

// Result is the raw text of a document plus what is known about its origin.
type Result struct {
	Text     string            `json:"-"`
	Method   string            `json:"method"`
	FileType string            `json:"fileType"`
	MIMEType string            `json:"mimeType"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
