package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serveTLS(t *testing.T, contentType, payload string) *httptest.Server {
	t.Helper()
	return serveTLSAfter(t, 0, contentType, payload)
}

// serveTLSAfter answers every request after waiting delay.
func serveTLSAfter(t *testing.T, delay time.Duration, contentType, payload string) *httptest.Server {
	t.Helper()
	t.Setenv("ALLOW_PRIVATE_DOWNLOAD_URLS", "1")

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if r.Header.Get("User-Agent") != userAgent {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	origTransport := http.DefaultTransport
	http.DefaultTransport = srv.Client().Transport
	t.Cleanup(func() { http.DefaultTransport = origTransport })
	return srv
}

func TestRouterFromURLCallsSuccessHook(t *testing.T) {
	const payload = "hello"
	srv := serveTLS(t, "text/plain", payload)

	reg := NewRegistry()
	reg.Register(&stubExtractor{name: "text", mts: []string{"text/plain"}, exts: []string{".txt"}, text: "extracted"})
	router := NewRouter(reg, RouterConfig{MaxFileBytes: 1 << 20, DownloadTimeout: 5 * time.Second})

	var (
		called      bool
		gotFileType string
		gotFileSize int64
	)
	router.SetSuccessHook(func(fileType string, fileSize int64, duration time.Duration) {
		called = true
		gotFileType = fileType
		gotFileSize = fileSize
	})

	res, err := router.FromURL(context.Background(), srv.URL+"/docs/sample.txt?sig=abc", "")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if res.Text != "extracted" {
		t.Fatalf("text = %q", res.Text)
	}
	if !called {
		t.Fatalf("expected success hook to be called")
	}
	if gotFileType != "text" {
		t.Fatalf("expected fileType=text, got %q", gotFileType)
	}
	if gotFileSize != int64(len(payload)) {
		t.Fatalf("expected fileSize=%d, got %d", len(payload), gotFileSize)
	}
}

func TestRouterFromWebPageUsesPageExtractor(t *testing.T) {
	srv := serveTLS(t, "text/html", "<p>hi</p>")

	page := &stubExtractor{name: "web/page", text: "hi"}
	router := NewRouter(NewRegistry(), RouterConfig{MaxFileBytes: 1 << 20, DownloadTimeout: 5 * time.Second, PageExtractor: page})

	text, err := WebPageSource{Router: router, URL: srv.URL}.Text(context.Background())
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if text != "hi" {
		t.Fatalf("text = %q", text)
	}
}

func TestRouterWebPageUsesPageTimeout(t *testing.T) {
	srv := serveTLSAfter(t, 300*time.Millisecond, "text/html", "<p>slow</p>")

	reg := NewRegistry()
	reg.Register(&stubExtractor{name: "text", mts: []string{"text/html"}, exts: []string{".txt"}, text: "slow"})
	page := &stubExtractor{name: "web/page", text: "slow"}
	router := NewRouter(reg, RouterConfig{
		MaxFileBytes:    1 << 20,
		DownloadTimeout: 5 * time.Second,
		PageTimeout:     50 * time.Millisecond,
		PageExtractor:   page,
	})

	if _, err := router.FromWebPage(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected page fetch to time out")
	}
	if _, err := router.FromURL(context.Background(), srv.URL+"/notes.txt", ""); err != nil {
		t.Fatalf("document download should use the download timeout: %v", err)
	}
}

func TestRouterPageTimeoutDefaultsToDownloadTimeout(t *testing.T) {
	router := NewRouter(NewRegistry(), RouterConfig{DownloadTimeout: 7 * time.Second})
	if router.cfg.PageTimeout != 7*time.Second {
		t.Fatalf("page timeout = %v", router.cfg.PageTimeout)
	}
}

func TestSourcesReportExtraction(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubExtractor{
		name: "document/pdf",
		exts: []string{".pdf"},
		text: "body",
		meta: map[string]string{"pages": "3", "title": "Quarterly"},
	})
	router := NewRouter(reg, RouterConfig{MaxFileBytes: 1 << 20})

	text, info, err := UploadSource{Router: router, Body: strings.NewReader("%PDF-1.4 stub"), FileName: "q.pdf"}.Document(context.Background())
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if text != "body" {
		t.Fatalf("text = %q", text)
	}
	if info.FileType != "document/pdf" || info.Method != "stub" || info.MIMEType != "application/pdf" {
		t.Fatalf("info = %+v", info)
	}
	if info.Metadata["pages"] != "3" || info.Metadata["title"] != "Quarterly" {
		t.Fatalf("metadata = %v", info.Metadata)
	}

	if _, _, err := (UploadSource{Router: router, Body: strings.NewReader("x"), FileName: "x.png"}).Document(context.Background()); err == nil {
		t.Fatalf("expected error for unsupported upload")
	}
}

func TestRouterPropagatesFailures(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("corrupt file")
	reg.Register(&stubExtractor{name: "document/docx", exts: []string{".docx"}, err: boom})
	reg.Register(&stubExtractor{name: "small", exts: []string{".sml"}, max: 2})
	router := NewRouter(reg, RouterConfig{MaxFileBytes: 1 << 20})

	_, err := UploadSource{Router: router, Body: strings.NewReader("PK.."), FileName: "cv.docx"}.Text(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected extractor error, got %v", err)
	}

	if _, err := router.FromUpload(context.Background(), strings.NewReader("too big"), "a.sml"); err == nil {
		t.Fatalf("expected extractor size limit error")
	}

	if _, err := router.FromUpload(context.Background(), strings.NewReader("\x89PNG\r\n"), "pic.png"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}

	if _, err := router.FromWebPage(context.Background(), "https://example.com"); err == nil {
		t.Fatalf("expected error without page extractor")
	}
}

func TestDefaultFileName(t *testing.T) {
	cases := []struct {
		name, url, want string
	}{
		{"given.pdf", "https://x.test/a.docx", "given.pdf"},
		{"", "https://x.test/files/report.pdf?sig=1", "report.pdf"},
		{"", "https://x.test/", "input.bin"},
		{"", "", "input.bin"},
	}
	for _, tc := range cases {
		if got := defaultFileName(tc.name, tc.url); got != tc.want {
			t.Fatalf("defaultFileName(%q, %q) = %q, want %q", tc.name, tc.url, got, tc.want)
		}
	}
}
