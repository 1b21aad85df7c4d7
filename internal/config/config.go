package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string

	// Secrets
	InternalSharedSecret string

	// Limits
	MaxJSONBodyBytes int64
	MaxFileBytes     int64
	MaxPDFBytes      int64
	MaxWebPageBytes  int64

	// Concurrency
	MaxConcurrentRequests int64

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Request timeouts
	AnalyzeTimeout time.Duration

	// Download
	DownloadTimeout time.Duration
	WebFetchTimeout time.Duration

	// Poppler timeouts
	PDFInfoTimeout      time.Duration
	PDFToTextAllTimeout time.Duration

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int

	// Analysis
	RankLimit        int
	StopwordLanguage string

	LogLevel slog.Level
}

func Load() Config {
	return Config{
		Port: envStr("PORT", "8080"),

		InternalSharedSecret: envStr("INTERNAL_SHARED_SECRET", ""),

		MaxJSONBodyBytes: int64(envInt("MAX_JSON_BODY_BYTES", 2<<20)),
		MaxFileBytes:     int64(envInt("MAX_FILE_BYTES", int(100<<20))),
		MaxPDFBytes:      int64(envInt("MAX_PDF_BYTES", int(100<<20))),
		MaxWebPageBytes:  int64(envInt("MAX_WEB_PAGE_BYTES", int(10<<20))),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 8)),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),

		AnalyzeTimeout: envDur("ANALYZE_TIMEOUT", 120*time.Second),

		DownloadTimeout: envDur("DOWNLOAD_TIMEOUT", 25*time.Second),
		WebFetchTimeout: envDur("WEB_FETCH_TIMEOUT", 15*time.Second),

		PDFInfoTimeout:      envDur("PDFINFO_TIMEOUT", 5*time.Second),
		PDFToTextAllTimeout: envDur("PDFTOTEXT_ALL_TIMEOUT", 30*time.Second),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),

		RankLimit:        envInt("RANK_LIMIT", 5),
		StopwordLanguage: strings.ToLower(envStr("STOPWORD_LANGUAGE", "english")),

		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func (c Config) Validate() error {
	if len(strings.TrimSpace(c.InternalSharedSecret)) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	if c.RankLimit <= 0 {
		return fmt.Errorf("RANK_LIMIT must be positive")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// envLevel accepts debug, info, warn or error.
func envLevel(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return lvl
}
