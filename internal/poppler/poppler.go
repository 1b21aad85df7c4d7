package poppler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxTextBytes caps pdftotext output so a hostile PDF cannot exhaust memory.
const maxTextBytes = 50 << 20

var (
	ErrEncrypted = errors.New("PDF is password protected")
	ErrDamaged   = errors.New("PDF appears to be damaged or invalid")
)

type Config struct {
	InfoTimeout time.Duration
	TextTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.InfoTimeout <= 0 {
		out.InfoTimeout = 3 * time.Second
	}
	if out.TextTimeout <= 0 {
		out.TextTimeout = 30 * time.Second
	}
	return out
}

type Info struct {
	Pages     int
	Encrypted bool
	Title     string
	Author    string
}

var (
	pageCountRegex = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)
	encryptedRegex = regexp.MustCompile(`(?mi)^Encrypted:\s+yes`)
	titleRegex     = regexp.MustCompile(`(?m)^Title:\s+(.+?)\s*$`)
	authorRegex    = regexp.MustCompile(`(?m)^Author:\s+(.+?)\s*$`)
)

// GetInfo runs pdfinfo once and reads the page count, encryption flag and
// document title and author.
func GetInfo(ctx context.Context, pdfPath string, cfg Config) (Info, error) {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.InfoTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pdfinfo", pdfPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, classifyErr(ctx, "pdfinfo", err, stderr.String())
	}
	return ParseInfo(stdout.String())
}

// ParseInfo reads pdfinfo output.
func ParseInfo(out string) (Info, error) {
	pages, err := parsePages(out)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Pages:     pages,
		Encrypted: encryptedRegex.MatchString(out),
	}
	if m := titleRegex.FindStringSubmatch(out); m != nil {
		info.Title = m[1]
	}
	if m := authorRegex.FindStringSubmatch(out); m != nil {
		info.Author = m[1]
	}
	return info, nil
}

// ExtractText returns the reading-order text of the whole document. Pages are
// separated by newlines, not form feeds.
func ExtractText(ctx context.Context, pdfPath string, cfg Config) (string, error) {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.TextTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		"pdftotext",
		"-nopgbrk",
		"-enc", "UTF-8",
		pdfPath,
		"-",
	)

	text, stderr, err := runCaptureLimited(cmd, maxTextBytes+1)
	if err != nil {
		return "", classifyErr(ctx, "pdftotext", err, stderr)
	}
	return text, nil
}

func parsePages(out string) (int, error) {
	if m := pageCountRegex.FindStringSubmatch(out); len(m) == 2 {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
		}
		return validatePages(n)
	}

	// Some builds pad or reorder the field.
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(strings.ToLower(line), "pages:") {
			continue
		}
		fields := strings.Fields(line[len("pages:"):])
		if len(fields) == 0 {
			break
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
		}
		return validatePages(n)
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("pdfinfo: scan failed: %w", err)
	}
	return 0, fmt.Errorf("pdfinfo: pages field not found in output")
}

func validatePages(count int) (int, error) {
	if count <= 0 || count > 50000 {
		return 0, fmt.Errorf("pdfinfo: unreasonable page count: %d", count)
	}
	return count, nil
}

var errOutputLimit = errors.New("output exceeds limit")

func runCaptureLimited(cmd *exec.Cmd, maxBytes int64) (string, string, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start: %w", err)
	}

	out, readErr := io.ReadAll(io.LimitReader(stdoutPipe, maxBytes))
	if readErr != nil || int64(len(out)) >= maxBytes {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	stderrStr := strings.TrimSpace(stderr.String())

	switch {
	case readErr != nil:
		return "", stderrStr, fmt.Errorf("read stdout: %w", readErr)
	case int64(len(out)) >= maxBytes:
		return "", stderrStr, errOutputLimit
	case waitErr != nil:
		return "", stderrStr, waitErr
	}
	return string(out), stderrStr, nil
}

// isUsageOutput reports whether stderr is a poppler help dump rather than a
// processing error.
func isUsageOutput(stderr string) bool {
	return strings.Contains(stderr, "version ") && strings.Contains(stderr, "Usage:")
}

func classifyErr(ctx context.Context, tool string, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timeout: %w", tool, ctx.Err())
	}
	if errors.Is(err, errOutputLimit) {
		return fmt.Errorf("%s: extracted text too large", tool)
	}

	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s failed: %w", tool, err)
	}

	logStderr(tool, stderr)
	switch {
	case isUsageOutput(stderr):
		return fmt.Errorf("%s failed (bad invocation): %s", tool, truncate(stderr, 200))
	case strings.Contains(stderr, "Incorrect password"):
		return ErrEncrypted
	case containsAny(stderr, "PDF file is damaged", "Syntax Error", "Couldn't find trailer dictionary", "May not be a PDF file"):
		return ErrDamaged
	case strings.Contains(stderr, "I/O Error") && strings.Contains(stderr, "Couldn't open file"):
		return fmt.Errorf("%s: unable to open PDF", tool)
	}
	return fmt.Errorf("%s failed: %s", tool, truncate(stderr, 200))
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func logStderr(tool, stderr string) {
	slog.Warn("poppler error", "tool", tool, "stderr", truncate(stderr, 500))
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
