package extract

import (
	"context"
	"io"

	"github.com/toricodesthings/doc-insight-service/internal/analysis"
)

// The sources below satisfy analysis.DocumentSource and report what the
// extractor learned about the document through analysis.DescribedSource.

type URLSource struct {
	Router   *Router
	URL      string
	FileName string
}

func (s URLSource) Text(ctx context.Context) (string, error) {
	text, _, err := s.Document(ctx)
	return text, err
}

func (s URLSource) Document(ctx context.Context) (string, analysis.SourceInfo, error) {
	return describe(s.Router.FromURL(ctx, s.URL, s.FileName))
}

type UploadSource struct {
	Router   *Router
	Body     io.Reader
	FileName string
}

func (s UploadSource) Text(ctx context.Context) (string, error) {
	text, _, err := s.Document(ctx)
	return text, err
}

func (s UploadSource) Document(ctx context.Context) (string, analysis.SourceInfo, error) {
	return describe(s.Router.FromUpload(ctx, s.Body, s.FileName))
}

type WebPageSource struct {
	Router *Router
	URL    string
}

func (s WebPageSource) Text(ctx context.Context) (string, error) {
	text, _, err := s.Document(ctx)
	return text, err
}

func (s WebPageSource) Document(ctx context.Context) (string, analysis.SourceInfo, error) {
	return describe(s.Router.FromWebPage(ctx, s.URL))
}

func describe(res Result, err error) (string, analysis.SourceInfo, error) {
	if err != nil {
		return "", analysis.SourceInfo{}, err
	}
	return res.Text, analysis.SourceInfo{
		Method:   res.Method,
		FileType: res.FileType,
		MIMEType: res.MIMEType,
		Metadata: res.Metadata,
	}, nil
}
