package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/toricodesthings/doc-insight-service/internal/analysis"
	"github.com/toricodesthings/doc-insight-service/internal/config"
	"github.com/toricodesthings/doc-insight-service/internal/extract"
	ebookextractor "github.com/toricodesthings/doc-insight-service/internal/extractors/ebook"
	officeextractor "github.com/toricodesthings/doc-insight-service/internal/extractors/office"
	opendocumentextractor "github.com/toricodesthings/doc-insight-service/internal/extractors/opendocument"
	pdfextractor "github.com/toricodesthings/doc-insight-service/internal/extractors/pdf"
	plaintextextractor "github.com/toricodesthings/doc-insight-service/internal/extractors/plaintext"
	"github.com/toricodesthings/doc-insight-service/internal/nlp"
	"github.com/toricodesthings/doc-insight-service/internal/poppler"
	"github.com/toricodesthings/doc-insight-service/internal/textclean"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const version = "1.0.0"

type server struct {
	cfg      config.Config
	analyzer *analysis.Analyzer
	router   *extract.Router
	formats  []string

	requestSem *semaphore.Weighted

	// Per-IP rate limiters
	limMu    sync.Mutex
	limiters *sync.Map

	metrics *serverMetrics
}

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	analyses      int64
	failures      map[string]int64
	byFileType    map[string]int64
}

func newServerMetrics() *serverMetrics {
	return &serverMetrics{failures: map[string]int64{}, byFileType: map[string]int64{}}
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}

func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}

func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func (m *serverMetrics) recordExtraction(fileType string) {
	m.mu.Lock()
	m.byFileType[fileType]++
	m.mu.Unlock()
}

func (m *serverMetrics) recordAnalysis(failure string) {
	m.mu.Lock()
	if failure == "" {
		m.analyses++
	} else {
		m.failures[failure]++
	}
	m.mu.Unlock()
}

func (m *serverMetrics) snapshot() (analyses int64, failures, byFileType map[string]int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	failures = make(map[string]int64, len(m.failures))
	for k, v := range m.failures {
		failures[k] = v
	}
	byFileType = make(map[string]int64, len(m.byFileType))
	for k, v := range m.byFileType {
		byFileType[k] = v
	}
	return m.analyses, failures, byFileType
}

func main() {
	cfg := config.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	stops, err := textclean.LoadStopwords(cfg.StopwordLanguage)
	if err != nil {
		slog.Error("stop-words unavailable", "language", cfg.StopwordLanguage, "error", err)
		os.Exit(1)
	}

	analyzer := analysis.New(analysis.Options{
		Model:     nlp.Default(),
		Stopwords: stops,
		RankLimit: cfg.RankLimit,
	})

	registry := newRegistry(cfg)
	router := extract.NewRouter(registry, extract.RouterConfig{
		MaxFileBytes:    cfg.MaxFileBytes,
		MaxPageBytes:    cfg.MaxWebPageBytes,
		DownloadTimeout: cfg.DownloadTimeout,
		PageTimeout:     cfg.WebFetchTimeout,
		PageExtractor:   plaintextextractor.NewWebPage(),
	})

	s := newServer(cfg, analyzer, router, registry.Formats())

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	go s.cleanupRateLimiters()

	slog.Info("docinsight listening",
		"addr", srv.Addr,
		"maxConcurrent", cfg.MaxConcurrentRequests,
		"stopwords", stops.Language(),
		"formats", registry.Formats(),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// newRegistry registers the document file extractors. Web pages are handled by
// the router's page extractor, not through the registry.
func newRegistry(cfg config.Config) *extract.Registry {
	registry := extract.NewRegistry()
	registry.Register(plaintextextractor.New(cfg.MaxFileBytes))
	registry.Register(plaintextextractor.NewHTML(cfg.MaxFileBytes))
	registry.Register(pdfextractor.New(poppler.Config{
		InfoTimeout: cfg.PDFInfoTimeout,
		TextTimeout: cfg.PDFToTextAllTimeout,
	}, cfg.MaxPDFBytes))
	registry.Register(officeextractor.NewDOCX(cfg.MaxFileBytes))
	registry.Register(officeextractor.NewXLSX(cfg.MaxFileBytes))
	registry.Register(opendocumentextractor.New(cfg.MaxFileBytes))
	registry.Register(ebookextractor.NewEPUB(cfg.MaxFileBytes))
	return registry
}

func newServer(cfg config.Config, analyzer *analysis.Analyzer, router *extract.Router, formats []string) *server {
	s := &server{
		cfg:        cfg,
		analyzer:   analyzer,
		router:     router,
		formats:    formats,
		requestSem: semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		limiters:   &sync.Map{},
		metrics:    newServerMetrics(),
	}
	router.SetSuccessHook(func(fileType string, fileSize int64, duration time.Duration) {
		s.metrics.recordExtraction(fileType)
		slog.Debug("document extracted", "fileType", fileType, "bytes", fileSize, "duration", duration)
	})
	return s
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.withInternalAuth(s.handleMetrics))

	mux.HandleFunc("/analyze",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod(http.MethodPost,
					s.withConcurrencyLimit(s.handleAnalyze)))))

	mux.HandleFunc("/analyze/upload",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod(http.MethodPost,
					s.withConcurrencyLimit(s.handleAnalyzeUpload)))))

	return withLogging(withRecovery(mux))
}

func (s *server) cleanupRateLimiters() {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := s.metrics.get()
		slog.Info("stats",
			"active", active,
			"total", total,
			"goroutines", runtime.NumGoroutine(),
			"memMB", m.Alloc/(1<<20),
		)

		s.limMu.Lock()
		s.limiters = &sync.Map{}
		s.limMu.Unlock()
	}
}

// ---------- Handlers ----------

type analyzeRequest struct {
	// URL is a web page; only its paragraph text is analyzed.
	URL string `json:"url,omitempty"`
	// DocumentURL is a document file; FileName picks the extractor when the
	// URL path does not carry a usable extension.
	DocumentURL string `json:"documentUrl,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	Text        string `json:"text,omitempty"`
	Keyword     string `json:"keyword,omitempty"`
}

type analyzeResponse struct {
	Success bool            `json:"success"`
	Result  analysis.Result `json:"result"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": version,
		"formats": s.formats,
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()
	analyses, failures, byFileType := s.metrics.snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests":    active,
		"totalRequests":     total,
		"analyses":          analyses,
		"failures":          failures,
		"extractionsByType": byFileType,
		"goroutines":        runtime.NumGoroutine(),
		"memAllocMB":        m.Alloc / (1 << 20),
		"memSysMB":          m.Sys / (1 << 20),
	})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[analyzeRequest](r, s.cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	src, err := s.sourceFor(req)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	s.analyze(w, r, src, req.Keyword)
}

func (s *server) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fileName := strings.TrimSpace(q.Get("fileName"))
	if fileName == "" {
		writeErr(w, http.StatusBadRequest, "validation_failed", "fileName query parameter required")
		return
	}

	src := extract.UploadSource{Router: s.router, Body: r.Body, FileName: fileName}
	s.analyze(w, r, src, strings.TrimSpace(q.Get("keyword")))
}

// sourceFor picks exactly one document source from the request.
func (s *server) sourceFor(req analyzeRequest) (analysis.DocumentSource, error) {
	var (
		src analysis.DocumentSource
		n   int
	)
	if u := strings.TrimSpace(req.URL); u != "" {
		src = extract.WebPageSource{Router: s.router, URL: u}
		n++
	}
	if u := strings.TrimSpace(req.DocumentURL); u != "" {
		src = extract.URLSource{Router: s.router, URL: u, FileName: req.FileName}
		n++
	}
	if req.Text != "" {
		src = analysis.StringSource(req.Text)
		n++
	}

	switch n {
	case 0:
		return nil, fmt.Errorf("one of url, documentUrl or text is required")
	case 1:
		return src, nil
	default:
		return nil, fmt.Errorf("only one of url, documentUrl or text may be set")
	}
}

func (s *server) analyze(w http.ResponseWriter, r *http.Request, src analysis.DocumentSource, keyword string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AnalyzeTimeout)
	defer cancel()

	res, err := s.analyzer.AnalyzeSource(ctx, src, keyword)
	if err != nil {
		status, code := errorStatus(err)
		s.metrics.recordAnalysis(code)
		slog.Warn("analysis failed", "code", code, "error", sanitizeError(err))
		writeErr(w, status, code, sanitizeError(err))
		return
	}

	s.metrics.recordAnalysis("")
	writeJSON(w, http.StatusOK, analyzeResponse{Success: true, Result: res})
}

// errorStatus maps an analysis error to an HTTP status and an error code.
func errorStatus(err error) (int, string) {
	kind, ok := analysis.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal_error"
	}
	switch kind {
	case analysis.SourceUnavailable:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "timeout"
		}
		return http.StatusUnprocessableEntity, kind.String()
	case analysis.ModelUnavailable:
		return http.StatusServiceUnavailable, kind.String()
	}
	return http.StatusInternalServerError, "internal_error"
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

func (s *server) withInternalAuth(next http.HandlerFunc) http.HandlerFunc {
	shared := s.cfg.InternalSharedSecret
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Auth")
		if subtle.ConstantTimeCompare([]byte(got), []byte(shared)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid authentication")
			return
		}
		next(w, r)
	}
}

func (s *server) withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.requestSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer s.requestSem.Release(1)

		s.metrics.incActive()
		defer s.metrics.decActive()

		next(w, r)
	}
}

func (s *server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limiter := s.getRateLimiter(getClientIP(r))

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic", "error", err, "path", sanitizeLogString(r.URL.Path))
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		slog.Info("request",
			"method", r.Method,
			"path", sanitizeLogString(r.URL.Path),
			"status", ww.status,
			"duration", time.Since(start),
		)
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func (s *server) getRateLimiter(ip string) *rate.Limiter {
	s.limMu.Lock()
	limiters := s.limiters
	s.limMu.Unlock()

	if v, ok := limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := s.cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	v, _ := limiters.LoadOrStore(ip, rate.NewLimiter(rate.Every(every), burst))
	return v.(*rate.Limiter)
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&out); err != nil {
		return out, err
	}

	// Ensure there's nothing else after the first JSON value
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, fmt.Errorf("unexpected trailing data")
		}
		return out, err
	}

	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
