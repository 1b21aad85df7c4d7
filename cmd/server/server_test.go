package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/toricodesthings/doc-insight-service/internal/analysis"
	"github.com/toricodesthings/doc-insight-service/internal/config"
	"github.com/toricodesthings/doc-insight-service/internal/extract"
	plaintextextractor "github.com/toricodesthings/doc-insight-service/internal/extractors/plaintext"
	"github.com/toricodesthings/doc-insight-service/internal/nlp"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// wordModel treats the whole input as one sentence of whitespace words, tags
// everything NN and finds no entities.
type wordModel struct{ err error }

func (m wordModel) Tokenize(text string) ([]string, []string, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return []string{text}, strings.Fields(text), nil
}

func (m wordModel) Tag(words []string) ([]nlp.TaggedToken, error) {
	out := make([]nlp.TaggedToken, len(words))
	for i, w := range words {
		out[i] = nlp.TaggedToken{Word: w, Tag: "NN"}
	}
	return out, nil
}

func (m wordModel) Entities(string) ([]nlp.Entity, error) { return nil, nil }

func testServer(t *testing.T, model nlp.Model) *server {
	t.Helper()
	cfg := config.Config{
		InternalSharedSecret:  testSecret,
		MaxJSONBodyBytes:      1 << 20,
		MaxFileBytes:          1 << 20,
		MaxConcurrentRequests: 4,
		AnalyzeTimeout:        5 * time.Second,
		RateLimitEvery:        time.Millisecond,
		RateLimitBurst:        100,
		HealthDegradeRatio:    0.9,
		RankLimit:             5,
	}
	registry := extract.NewRegistry()
	registry.Register(plaintextextractor.New(cfg.MaxFileBytes))
	router := extract.NewRouter(registry, extract.RouterConfig{
		MaxFileBytes:  cfg.MaxFileBytes,
		PageExtractor: plaintextextractor.NewWebPage(),
	})
	analyzer := analysis.New(analysis.Options{Model: model, RankLimit: cfg.RankLimit})
	return newServer(cfg, analyzer, router, registry.Formats())
}

func do(t *testing.T, h http.Handler, method, target, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if auth {
		req.Header.Set("X-Internal-Auth", testSecret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	h := testServer(t, wordModel{}).handler()

	rec := do(t, h, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("body = %v", body)
	}
}

func TestAnalyzeRequiresAuthAndPost(t *testing.T) {
	h := testServer(t, wordModel{}).handler()

	if rec := do(t, h, http.MethodPost, "/analyze", `{"text":"hi"}`, false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/analyze", "", true)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("allow = %q", rec.Header().Get("Allow"))
	}
	if rec := do(t, h, http.MethodGet, "/metrics", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for metrics, got %d", rec.Code)
	}
}

func TestAnalyzeText(t *testing.T) {
	h := testServer(t, wordModel{}).handler()

	body := `{"text":"Contact me at a@b.com or a@b.com, call +12025550123","keyword":"call"}`
	rec := do(t, h, http.MethodPost, "/analyze", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	resp := decode[analyzeResponse](t, rec)
	if !resp.Success {
		t.Fatalf("expected success")
	}
	res := resp.Result
	if len(res.Emails) != 1 || res.Emails[0].Item != "a@b.com" || res.Emails[0].Count != 2 {
		t.Fatalf("emails = %+v", res.Emails)
	}
	if len(res.Phones) != 1 || res.Phones[0] != "12025550123" {
		t.Fatalf("phones = %v", res.Phones)
	}
	if res.WordCount != 4 || res.SentenceCount != 1 {
		t.Fatalf("counts = %d words, %d sentences", res.WordCount, res.SentenceCount)
	}
	if res.Keyword != "call" || len(res.KeywordLines) != 1 {
		t.Fatalf("keyword fields = %q %v", res.Keyword, res.KeywordLines)
	}
	if res.ID == "" {
		t.Fatalf("expected result id")
	}
	if res.Source != nil {
		t.Fatalf("literal text should carry no source, got %+v", res.Source)
	}
}

func TestAnalyzeValidatesSource(t *testing.T) {
	h := testServer(t, wordModel{}).handler()

	cases := map[string]string{
		"none":     `{"keyword":"x"}`,
		"multiple": `{"text":"a","url":"https://example.com"}`,
		"unknown":  `{"body":"a"}`,
		"trailing": `{"text":"a"} {}`,
	}
	for name, body := range cases {
		if rec := do(t, h, http.MethodPost, "/analyze", body, true); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestAnalyzeSourceErrorIs422(t *testing.T) {
	h := testServer(t, wordModel{}).handler()

	rec := do(t, h, http.MethodPost, "/analyze", `{"documentUrl":"http://example.com/a.pdf"}`, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decode[map[string]any](t, rec)
	if body["code"] != "source_unavailable" || body["success"] != false {
		t.Fatalf("body = %v", body)
	}
}

func TestAnalyzeModelErrorIs503(t *testing.T) {
	s := testServer(t, wordModel{err: errors.New("model not loaded")})
	h := s.handler()

	rec := do(t, h, http.MethodPost, "/analyze", `{"text":"some words here"}`, true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["code"] != "model_unavailable" {
		t.Fatalf("body = %v", body)
	}

	_, failures, _ := s.metrics.snapshot()
	if failures["model_unavailable"] != 1 {
		t.Fatalf("failures = %v", failures)
	}
}

func TestAnalyzeUpload(t *testing.T) {
	s := testServer(t, wordModel{})
	h := s.handler()

	rec := do(t, h, http.MethodPost, "/analyze/upload", "Meet John on 12/05/2023", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without fileName, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/analyze/upload?fileName=notes.txt", "Meet John on 12/05/2023", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	res := decode[analyzeResponse](t, rec).Result
	if len(res.Dates) != 1 || res.Dates[0] != "12/05/2023" {
		t.Fatalf("dates = %v", res.Dates)
	}
	if res.Source == nil || res.Source.FileType != "text/plain" || res.Source.Method != "native" {
		t.Fatalf("source = %+v", res.Source)
	}
	if !strings.HasPrefix(res.Source.MIMEType, "text/plain") {
		t.Fatalf("source mime = %q", res.Source.MIMEType)
	}

	rec = do(t, h, http.MethodPost, "/analyze/upload?fileName=scan.png", "\x89PNG\r\n\x1a\n", true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unsupported upload, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/metrics", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	metrics := decode[map[string]any](t, rec)
	byType, _ := metrics["extractionsByType"].(map[string]any)
	if byType["text/plain"] != float64(1) {
		t.Fatalf("extractionsByType = %v", metrics["extractionsByType"])
	}
	if metrics["analyses"] != float64(1) {
		t.Fatalf("analyses = %v", metrics["analyses"])
	}
}

func TestErrorStatus(t *testing.T) {
	source := fmt.Errorf("wrapped: %w", &analysis.Error{Kind: analysis.SourceUnavailable, Op: "read document", Err: errors.New("404")})
	timeout := &analysis.Error{Kind: analysis.SourceUnavailable, Op: "read document", Err: context.DeadlineExceeded}
	model := &analysis.Error{Kind: analysis.ModelUnavailable, Op: "tag", Err: errors.New("x")}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{source, http.StatusUnprocessableEntity, "source_unavailable"},
		{timeout, http.StatusGatewayTimeout, "timeout"},
		{model, http.StatusServiceUnavailable, "model_unavailable"},
		{errors.New("other"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("errorStatus(%v) = %d %q, want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	s := testServer(t, wordModel{})
	s.cfg.RateLimitEvery = time.Hour
	s.cfg.RateLimitBurst = 1
	h := s.handler()

	if rec := do(t, h, http.MethodPost, "/analyze", `{"text":"one"}`, true); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/analyze", `{"text":"two"}`, true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	if got := getClientIP(req); got != "10.0.0.9" {
		t.Fatalf("remote addr ip = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := getClientIP(req); got != "203.0.113.7" {
		t.Fatalf("forwarded ip = %q", got)
	}
}
