package extract

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const userAgent = "docinsight/1.0"

type DownloadedFile struct {
	TempDir  string
	Path     string
	MIMEType string
	Size     int64
}

func (d DownloadedFile) Cleanup() {
	if d.TempDir != "" {
		_ = os.RemoveAll(d.TempDir)
	}
}

// DownloadToTemp fetches rawURL into a fresh temp dir. Only public https hosts
// are accepted unless ALLOW_PRIVATE_DOWNLOAD_URLS is set.
func DownloadToTemp(ctx context.Context, rawURL string, fileName string, maxBytes int64, timeout time.Duration) (DownloadedFile, error) {
	if err := validateDownloadURL(rawURL); err != nil {
		return DownloadedFile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return DownloadedFile{}, fmt.Errorf("download: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return DownloadedFile{}, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DownloadedFile{}, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	dl, err := writeTemp(resp.Body, fileName, maxBytes)
	if err != nil {
		return DownloadedFile{}, err
	}
	if dl.MIMEType == "" {
		dl.MIMEType = headerMIMEType(resp.Header.Get("Content-Type"))
	}
	return dl, nil
}

// SaveBodyToTemp stores an uploaded body the same way DownloadToTemp stores a
// download.
func SaveBodyToTemp(body io.Reader, fileName string, maxBytes int64) (DownloadedFile, error) {
	return writeTemp(body, fileName, maxBytes)
}

func writeTemp(body io.Reader, fileName string, maxBytes int64) (DownloadedFile, error) {
	tmpDir, err := os.MkdirTemp("", "docinsight-*")
	if err != nil {
		return DownloadedFile{}, fmt.Errorf("temp dir: %w", err)
	}
	fail := func(err error) (DownloadedFile, error) {
		_ = os.RemoveAll(tmpDir)
		return DownloadedFile{}, err
	}

	outPath := filepath.Join(tmpDir, safeFileName(fileName))
	f, err := os.Create(outPath)
	if err != nil {
		return fail(fmt.Errorf("create: %w", err))
	}
	defer f.Close()

	lr := &io.LimitedReader{R: body, N: maxBytes + 1}
	n, err := io.Copy(f, lr)
	if err != nil {
		return fail(fmt.Errorf("write: %w", err))
	}
	if n > maxBytes {
		return fail(fmt.Errorf("file exceeds %dMB limit", maxBytes/(1<<20)))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync: %w", err))
	}

	return DownloadedFile{
		TempDir:  tmpDir,
		Path:     outPath,
		MIMEType: sniffMIMEType(outPath),
		Size:     n,
	}, nil
}

func safeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "input.bin"
	}
	return name
}

func headerMIMEType(contentType string) string {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mt, ";"); i > 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func validateDownloadURL(rawURL string) error {
	allowPrivate := allowPrivateDownloadURLs()

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed == nil {
		return fmt.Errorf("invalid download URL")
	}

	host := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if host == "" {
		return fmt.Errorf("download URL host is required")
	}

	isLocal := host == "localhost" || strings.HasSuffix(host, ".localhost")
	if ip := net.ParseIP(host); ip != nil && isPrivateOrLocalIP(ip) {
		isLocal = true
	}

	switch strings.ToLower(parsed.Scheme) {
	case "https":
	case "http":
		if !(allowPrivate && isLocal) {
			return fmt.Errorf("download URL must use https")
		}
	default:
		return fmt.Errorf("download URL must use https")
	}

	if isLocal && !allowPrivate {
		return fmt.Errorf("download URL host is not allowed")
	}
	return nil
}

func allowPrivateDownloadURLs() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ALLOW_PRIVATE_DOWNLOAD_URLS")))
	return v == "1" || v == "true" || v == "yes"
}

func isPrivateOrLocalIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}

	// RFC6598 carrier-grade NAT range: 100.64.0.0/10
	if v4 := ip.To4(); v4 != nil && v4[0] == 100 && v4[1] >= 64 && v4[1] <= 127 {
		return true
	}
	return false
}

func sniffMIMEType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err == nil && m != nil {
		return strings.ToLower(strings.TrimSpace(m.String()))
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n <= 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(http.DetectContentType(buf[:n])))
}
