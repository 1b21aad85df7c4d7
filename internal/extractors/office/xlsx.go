package office

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/toricodesthings/doc-insight-service/internal/extract"
	"github.com/xuri/excelize/v2"
)

// maxSheetRows bounds how many rows of one sheet are read.
const maxSheetRows = 10000

type XLSXExtractor struct {
	maxBytes int64
}

func NewXLSX(maxBytes int64) *XLSXExtractor {
	return &XLSXExtractor{maxBytes: maxBytes}
}

func (e *XLSXExtractor) Name() string       { return "document/xlsx" }
func (e *XLSXExtractor) MaxFileSize() int64 { return e.maxBytes }
func (e *XLSXExtractor) SupportedTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
}
func (e *XLSXExtractor) SupportedExtensions() []string { return []string{".xlsx"} }

// Extract returns every non-empty row of every sheet, cells separated by tabs.
// Sheets are separated by a blank line.
func (e *XLSXExtractor) Extract(ctx context.Context, job extract.Job) (extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return extract.Result{}, err
	}

	f, err := excelize.OpenFile(job.LocalPath)
	if err != nil {
		return extract.Result{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var (
		sections  []string
		totalRows int
	)
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return extract.Result{}, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return extract.Result{}, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		lines := sheetLines(rows)
		if len(lines) == 0 {
			continue
		}
		totalRows += len(lines)
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return extract.Result{
		Text:     strings.Join(sections, "\n\n"),
		Method:   "native",
		FileType: e.Name(),
		MIMEType: job.MIMEType,
		Metadata: map[string]string{
			"sheets":    strconv.Itoa(len(sheets)),
			"totalRows": strconv.Itoa(totalRows),
		},
	}, nil
}

func sheetLines(rows [][]string) []string {
	if len(rows) > maxSheetRows {
		rows = rows[:maxSheetRows]
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		empty := true
		for _, c := range row {
			c = strings.TrimSpace(c)
			if c != "" {
				empty = false
			}
			cells = append(cells, c)
		}
		if empty {
			continue
		}
		lines = append(lines, strings.TrimRight(strings.Join(cells, "\t"), "\t"))
	}
	return lines
}
