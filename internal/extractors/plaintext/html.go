package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/toricodesthings/doc-insight-service/internal/extract"
	"golang.org/x/net/html"
)

// HTMLExtractor handles HTML files: headings, paragraphs and list items, one
// per line, skipping page chrome.
type HTMLExtractor struct {
	maxBytes int64
}

func NewHTML(maxBytes int64) *HTMLExtractor { return &HTMLExtractor{maxBytes: maxBytes} }

func (e *HTMLExtractor) Name() string       { return "document/html" }
func (e *HTMLExtractor) MaxFileSize() int64 { return e.maxBytes }
func (e *HTMLExtractor) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}
func (e *HTMLExtractor) SupportedExtensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

func (e *HTMLExtractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	doc, err := parseFile(ctx, job.LocalPath)
	if err != nil {
		return extract.Result{}, err
	}

	text, title := BlockText(doc)
	var meta map[string]string
	if title != "" {
		meta = map[string]string{"title": title}
	}

	return extract.Result{
		Text:     text,
		Method:   "native",
		FileType: e.Name(),
		MIMEType: job.MIMEType,
		Metadata: meta,
	}, nil
}

// BlockText returns the text of headings, paragraphs and list items under n,
// one per line, along with the document title. Page chrome is skipped. When no
// such block exists the whole text content is returned.
func BlockText(n *html.Node) (text, title string) {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "aside", "noscript":
				return
			case "title":
				title = strings.TrimSpace(nodeText(n))
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "blockquote", "pre":
				if t := strings.TrimSpace(nodeText(n)); t != "" {
					lines = append(lines, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if len(lines) == 0 {
		return strings.TrimSpace(nodeText(n)), title
	}
	return strings.Join(lines, "\n"), title
}

// WebPageExtractor keeps only the text of <p> elements, in document order,
// one per line. It is used for fetched web pages rather than registered by
// file type.
type WebPageExtractor struct{}

func NewWebPage() *WebPageExtractor { return &WebPageExtractor{} }

func (e *WebPageExtractor) Name() string                  { return "web/page" }
func (e *WebPageExtractor) MaxFileSize() int64            { return 0 }
func (e *WebPageExtractor) SupportedTypes() []string      { return []string{"text/html"} }
func (e *WebPageExtractor) SupportedExtensions() []string { return nil }

func (e *WebPageExtractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	doc, err := parseFile(ctx, job.LocalPath)
	if err != nil {
		return extract.Result{}, err
	}
	return extract.Result{
		Text:     ParagraphText(doc),
		Method:   "paragraphs",
		FileType: e.Name(),
		MIMEType: job.MIMEType,
	}, nil
}

// ParagraphText joins the text of every <p> under n with newlines.
func ParagraphText(n *html.Node) string {
	var paras []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			paras = append(paras, nodeText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(paras, "\n")
}

func parseFile(ctx context.Context, path string) (*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
