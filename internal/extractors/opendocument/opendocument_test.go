package opendocument

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/toricodesthings/doc-insight-service/internal/extract"
)

const contentXML = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
  xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"
  xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0">
<office:body><office:text>
<text:h text:outline-level="1">Minutes</text:h>
<text:p>Present:<text:s/>John Smith and <text:span>Ann Lee</text:span></text:p>
<text:p/>
<table:table>
<table:table-row><table:table-cell><text:p>Date</text:p></table:table-cell><table:table-cell><text:p>12/05/2023</text:p></table:table-cell></table:table-row>
</table:table>
</office:text></office:body>
</office:document-content>`

func TestExtractODT(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "minutes.odt")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"content.xml": contentXML,
		"meta.xml":    `<office:document-meta xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:dc="http://purl.org/dc/elements/1.1/"><office:meta><dc:title>Board minutes</dc:title></office:meta></office:document-meta>`,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	f.Close()

	res, err := New(0).Extract(context.Background(), extract.Job{LocalPath: p})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "Minutes\nPresent: John Smith and Ann Lee\nDate\t12/05/2023"
	if res.Text != want {
		t.Fatalf("text = %q, want %q", res.Text, want)
	}
	if res.Metadata["title"] != "Board minutes" {
		t.Fatalf("metadata = %v", res.Metadata)
	}
}
