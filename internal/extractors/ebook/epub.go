package ebook

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/toricodesthings/doc-insight-service/internal/extract"
	"github.com/toricodesthings/doc-insight-service/internal/extractors/plaintext"
	"golang.org/x/net/html"
)

const (
	maxPackageBytes = 4 << 20
	maxChapterBytes = 16 << 20
)

type EPUBExtractor struct {
	maxBytes int64
}

func NewEPUB(maxBytes int64) *EPUBExtractor { return &EPUBExtractor{maxBytes: maxBytes} }

func (e *EPUBExtractor) Name() string                  { return "document/epub" }
func (e *EPUBExtractor) MaxFileSize() int64            { return e.maxBytes }
func (e *EPUBExtractor) SupportedTypes() []string      { return []string{"application/epub+zip"} }
func (e *EPUBExtractor) SupportedExtensions() []string { return []string{".epub"} }

// Extract returns chapter text in spine order, chapters separated by a blank
// line.
func (e *EPUBExtractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return extract.Result{}, err
	}

	zr, err := zip.OpenReader(job.LocalPath)
	if err != nil {
		return extract.Result{}, fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	opfPath := findOPFPath(&zr.Reader)
	if opfPath == "" {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
				opfPath = f.Name
				break
			}
		}
	}

	var (
		spine []string
		meta  map[string]string
	)
	if opfPath != "" {
		if b, err := readZipEntry(&zr.Reader, opfPath, maxPackageBytes); err == nil {
			spine, meta = parseOPF(b, path.Dir(opfPath))
		}
	}
	if len(spine) == 0 {
		for _, f := range zr.File {
			switch strings.ToLower(path.Ext(f.Name)) {
			case ".xhtml", ".html", ".htm":
				spine = append(spine, f.Name)
			}
		}
	}

	var chapters []string
	for _, item := range spine {
		if err := ctx.Err(); err != nil {
			return extract.Result{}, err
		}
		b, err := readZipEntry(&zr.Reader, item, maxChapterBytes)
		if err != nil {
			continue
		}
		doc, err := html.Parse(bytes.NewReader(b))
		if err != nil {
			continue
		}
		if text, _ := plaintext.BlockText(doc); strings.TrimSpace(text) != "" {
			chapters = append(chapters, text)
		}
	}
	if len(chapters) == 0 {
		return extract.Result{}, fmt.Errorf("epub has no readable chapters")
	}

	return extract.Result{
		Text:     strings.Join(chapters, "\n\n"),
		Method:   "native",
		FileType: e.Name(),
		MIMEType: job.MIMEType,
		Metadata: meta,
	}, nil
}

// findOPFPath reads the package document location from META-INF/container.xml.
func findOPFPath(zr *zip.Reader) string {
	b, err := readZipEntry(zr, "META-INF/container.xml", maxPackageBytes)
	if err != nil {
		return ""
	}
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "rootfile" {
			if v := attr(se, "full-path"); v != "" {
				return v
			}
		}
	}
}

// parseOPF returns chapter paths in spine order plus Dublin Core metadata.
func parseOPF(data []byte, opfDir string) ([]string, map[string]string) {
	keys := map[string]string{
		"title":     "title",
		"creator":   "author",
		"publisher": "publisher",
		"language":  "language",
		"date":      "date",
	}

	manifest := map[string]string{}
	var order []string
	meta := map[string]string{}
	var current string

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			switch t.Name.Local {
			case "item":
				if id, href := attr(t, "id"), attr(t, "href"); id != "" && href != "" {
					manifest[id] = href
				}
			case "itemref":
				if ref := attr(t, "idref"); ref != "" {
					order = append(order, ref)
				}
			}
		case xml.CharData:
			key, ok := keys[current]
			if val := strings.TrimSpace(string(t)); ok && val != "" {
				if _, seen := meta[key]; !seen {
					meta[key] = val
				}
			}
		case xml.EndElement:
			current = ""
		}
	}

	var paths []string
	for _, ref := range order {
		href, ok := manifest[ref]
		if !ok {
			continue
		}
		if opfDir != "" && opfDir != "." {
			href = opfDir + "/" + href
		}
		paths = append(paths, href)
	}
	if len(meta) == 0 {
		meta = nil
	}
	return paths, meta
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func readZipEntry(zr *zip.Reader, name string, maxBytes int64) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		if f.UncompressedSize64 > uint64(maxBytes) {
			return nil, fmt.Errorf("%s exceeds %dMB uncompressed limit", name, maxBytes/(1<<20))
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		b, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(b)) > maxBytes {
			return nil, fmt.Errorf("%s exceeds %dMB uncompressed limit", name, maxBytes/(1<<20))
		}
		return b, nil
	}
	return nil, fmt.Errorf("not found: %s", name)
}
