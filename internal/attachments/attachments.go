// Package attachments stores the image files shown by canvas image nodes.
// Files live flat under attachments/ in the vault and are served at
// /attachments/<name>.
package attachments

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// Dir is the vault directory holding attachments.
const Dir = "attachments"

// MaxSize is the largest accepted attachment.
const MaxSize = 10 << 20

var mimeToExt = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// Attachment is a stored file.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Save validates data as an image and writes it under a fresh name keeping
// ext. Unsupported types and content that does not match ext fail with
// apperr.ErrInvalidInput.
func Save(store storage.Provider, ext string, data []byte) (Attachment, error) {
	ext = normalizeExt(ext)
	if !Allowed(ext) {
		return Attachment{}, fmt.Errorf("attachments: unsupported extension %q: %w", ext, apperr.ErrInvalidInput)
	}
	if len(data) == 0 {
		return Attachment{}, fmt.Errorf("attachments: empty file: %w", apperr.ErrInvalidInput)
	}
	if len(data) > MaxSize {
		return Attachment{}, fmt.Errorf("attachments: %d bytes exceeds %d: %w", len(data), MaxSize, apperr.ErrInvalidInput)
	}
	if err := checkContent(data, ext); err != nil {
		return Attachment{}, err
	}

	name := uuid.NewString() + ext
	if err := store.Write(Dir+"/"+name, data); err != nil {
		return Attachment{}, fmt.Errorf("attachments: save %s: %w", name, err)
	}
	return Attachment{Filename: name, Size: int64(len(data)), URL: "/" + Dir + "/" + name}, nil
}

// Allowed reports whether ext is an accepted image extension.
func Allowed(ext string) bool {
	switch normalizeExt(ext) {
	case ".png", ".jpg", ".gif", ".webp", ".svg":
		return true
	}
	return false
}

// Resolve returns the absolute path of attachment name under vaultRoot. Names
// with path separators or traversal fail with apperr.ErrInvalidInput.
func Resolve(vaultRoot, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("attachments: filename is required: %w", apperr.ErrInvalidInput)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("attachments: invalid filename %q: %w", name, apperr.ErrInvalidInput)
	}
	return filepath.Join(vaultRoot, Dir, cleaned), nil
}

// Fetch loads an image from a base64 data URI or an http(s) URL and returns
// its bytes and extension. Loopback and cloud metadata hosts are refused.
func Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return decodeDataURI(rawURL)
	}
	return fetchHTTP(ctx, rawURL)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}

func checkContent(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data[:min(len(data), 1024)]
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("attachments: content is not svg: %w", apperr.ErrInvalidInput)
		}
		return nil
	}
	detected := http.DetectContentType(data)
	if mimeToExt[strings.Split(detected, ";")[0]] != ext {
		return fmt.Errorf("attachments: content %s does not match %s: %w", detected, ext, apperr.ErrInvalidInput)
	}
	return nil
}

func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("attachments: data uri without payload: %w", apperr.ErrInvalidInput)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("attachments: only base64 data uris are supported: %w", apperr.ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("attachments: decode data uri: %w: %w", apperr.ErrInvalidInput, err)
		}
	}

	mime, _, _ := strings.Cut(strings.TrimSuffix(meta, ";base64"), ";")
	ext, ok := mimeToExt[mime]
	if !ok {
		return nil, "", fmt.Errorf("attachments: unsupported media type %q: %w", mime, apperr.ErrInvalidInput)
	}
	return data, ext, nil
}

var errBlockedHost = errors.New("blocked host")

func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("attachments: parse url: %w: %w", apperr.ErrInvalidInput, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("attachments: scheme %q: %w", parsed.Scheme, apperr.ErrInvalidInput)
	}
	if err := checkHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return checkHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("attachments: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("attachments: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("attachments: download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("attachments: read body: %w", err)
	}

	ext := mimeToExt[strings.Split(resp.Header.Get("Content-Type"), ";")[0]]
	if ext == "" {
		ext = normalizeExt(filepath.Ext(parsed.Path))
	}
	return data, ext, nil
}

// checkHost rejects loopback and cloud metadata addresses.
func checkHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("attachments: %w: %s: %w", errBlockedHost, host, apperr.ErrInvalidInput)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil //nolint:nilerr // the client reports DNS failures
		}
		ip = ips[0]
	}
	if ip.IsLoopback() || ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("attachments: %w: %s: %w", errBlockedHost, host, apperr.ErrInvalidInput)
	}
	return nil
}
