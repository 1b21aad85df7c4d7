package office

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/toricodesthings/doc-insight-service/internal/extract"
)

const (
	defaultMaxZipEntryBytes    = 64 << 20
	defaultMaxZipMetadataBytes = 1 << 20
)

type DOCXExtractor struct {
	maxBytes int64
}

func NewDOCX(maxBytes int64) *DOCXExtractor {
	return &DOCXExtractor{maxBytes: maxBytes}
}

func (e *DOCXExtractor) Name() string       { return "document/docx" }
func (e *DOCXExtractor) MaxFileSize() int64 { return e.maxBytes }
func (e *DOCXExtractor) SupportedTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
}
func (e *DOCXExtractor) SupportedExtensions() []string { return []string{".docx"} }

// Extract returns the text of every paragraph in the document body, one per
// line. Table rows become one line with cells separated by tabs.
func (e *DOCXExtractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return extract.Result{}, err
	}

	zr, err := zip.OpenReader(job.LocalPath)
	if err != nil {
		return extract.Result{}, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	body, err := readZipFile(&zr.Reader, "word/document.xml", defaultMaxZipEntryBytes)
	if err != nil {
		return extract.Result{}, err
	}

	text, err := docxText(body)
	if err != nil {
		return extract.Result{}, fmt.Errorf("parse docx: %w", err)
	}

	return extract.Result{
		Text:     text,
		Method:   "native",
		FileType: e.Name(),
		MIMEType: job.MIMEType,
		Metadata: parseCoreMetadata(&zr.Reader),
	}, nil
}

// docxText walks word/document.xml. A paragraph inside a table cell joins the
// cell's other paragraphs with a space.
func docxText(b []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))

	var (
		lines   []string
		para    strings.Builder
		cell    []string
		row     []string
		inText  bool
		tblDeep int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDeep++
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if tblDeep > 0 {
					if s := strings.TrimSpace(para.String()); s != "" {
						cell = append(cell, s)
					}
				} else {
					lines = append(lines, para.String())
				}
				para.Reset()
			case "tc":
				row = append(row, strings.Join(cell, " "))
				cell = nil
			case "tr":
				lines = append(lines, strings.Join(row, "\t"))
				row = nil
			case "tbl":
				tblDeep--
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

func readZipFile(zr *zip.Reader, name string, limit int64) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		if limit > 0 && f.UncompressedSize64 > uint64(limit) {
			return nil, fmt.Errorf("%s exceeds %d byte limit", name, limit)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		if limit <= 0 {
			return io.ReadAll(rc)
		}
		// The header size can lie, so cap the read as well.
		b, err := io.ReadAll(io.LimitReader(rc, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(b)) > limit {
			return nil, fmt.Errorf("%s exceeds %d byte limit", name, limit)
		}
		return b, nil
	}
	return nil, fmt.Errorf("missing %s", name)
}

// parseCoreMetadata reads title, author and dates from docProps/core.xml.
func parseCoreMetadata(zr *zip.Reader) map[string]string {
	b, err := readZipFile(zr, "docProps/core.xml", defaultMaxZipMetadataBytes)
	if err != nil {
		return nil
	}

	keys := map[string]string{
		"title":          "title",
		"creator":        "author",
		"subject":        "subject",
		"description":    "description",
		"created":        "created",
		"modified":       "modified",
		"lastModifiedBy": "lastModifiedBy",
	}

	meta := map[string]string{}
	dec := xml.NewDecoder(bytes.NewReader(b))
	var current string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
		case xml.CharData:
			key, ok := keys[current]
			if val := strings.TrimSpace(string(t)); ok && val != "" {
				meta[key] = val
			}
		case xml.EndElement:
			current = ""
		}
	}

	if len(meta) == 0 {
		return nil
	}
	return meta
}
