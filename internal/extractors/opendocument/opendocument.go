package opendocument

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
	textNS  = "urn:oasis:names:tc:opendocument:xmlns:text:1.0"
	tableNS = "urn:oasis:names:tc:opendocument:xmlns:table:1.0"

	maxContentBytes = 64 << 20
	maxMetaBytes    = 1 << 20
)

type Extractor struct {
	maxBytes int64
}

func New(maxBytes int64) *Extractor { return &Extractor{maxBytes: maxBytes} }

func (e *Extractor) Name() string       { return "document/opendocument" }
func (e *Extractor) MaxFileSize() int64 { return e.maxBytes }
func (e *Extractor) SupportedTypes() []string {
	return []string{"application/vnd.oasis.opendocument.text", "application/vnd.oasis.opendocument.spreadsheet"}
}
func (e *Extractor) SupportedExtensions() []string { return []string{".odt", ".ods"} }

// Extract reads content.xml: one line per paragraph or heading, table rows as
// tab-separated cells.
func (e *Extractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return extract.Result{}, err
	}

	zr, err := zip.OpenReader(job.LocalPath)
	if err != nil {
		return extract.Result{}, fmt.Errorf("open opendocument: %w", err)
	}
	defer zr.Close()

	content, err := readEntry(&zr.Reader, "content.xml", maxContentBytes)
	if err != nil {
		return extract.Result{}, err
	}
	text, err := contentText(content)
	if err != nil {
		return extract.Result{}, fmt.Errorf("parse content.xml: %w", err)
	}

	var meta map[string]string
	if b, err := readEntry(&zr.Reader, "meta.xml", maxMetaBytes); err == nil {
		meta = parseMeta(b)
	}

	return extract.Result{
		Text:     text,
		Method:   "native",
		FileType: e.Name(),
		MIMEType: job.MIMEType,
		Metadata: meta,
	}, nil
}

func contentText(b []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))

	var (
		lines []string
		para  strings.Builder
		depth int // nesting of text:p / text:h
		cell  []string
		row   []string
		inTbl int
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
			switch {
			case t.Name.Space == tableNS && t.Name.Local == "table":
				inTbl++
			case t.Name.Space == textNS && (t.Name.Local == "p" || t.Name.Local == "h"):
				depth++
			case t.Name.Space == textNS && t.Name.Local == "tab":
				para.WriteByte('\t')
			case t.Name.Space == textNS && t.Name.Local == "line-break":
				para.WriteByte('\n')
			case t.Name.Space == textNS && t.Name.Local == "s":
				para.WriteByte(' ')
			}
		case xml.CharData:
			if depth > 0 {
				para.Write(t)
			}
		case xml.EndElement:
			switch {
			case t.Name.Space == textNS && (t.Name.Local == "p" || t.Name.Local == "h"):
				depth--
				if depth > 0 {
					continue
				}
				s := strings.TrimSpace(para.String())
				para.Reset()
				if inTbl > 0 {
					if s != "" {
						cell = append(cell, s)
					}
				} else if s != "" {
					lines = append(lines, s)
				}
			case t.Name.Space == tableNS && t.Name.Local == "table-cell":
				row = append(row, strings.Join(cell, " "))
				cell = nil
			case t.Name.Space == tableNS && t.Name.Local == "table-row":
				if r := strings.TrimRight(strings.Join(row, "\t"), "\t"); r != "" {
					lines = append(lines, r)
				}
				row = nil
			case t.Name.Space == tableNS && t.Name.Local == "table":
				inTbl--
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

func parseMeta(b []byte) map[string]string {
	keys := map[string]string{
		"title":           "title",
		"initial-creator": "author",
		"creator":         "author",
		"creation-date":   "created",
		"date":            "modified",
		"subject":         "subject",
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

func readEntry(zr *zip.Reader, name string, maxBytes int64) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		if f.UncompressedSize64 > uint64(maxBytes) {
			return nil, fmt.Errorf("%s exceeds %d byte limit", name, maxBytes)
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
			return nil, fmt.Errorf("%s exceeds %d byte limit", name, maxBytes)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
