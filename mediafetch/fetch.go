// Package mediafetch loads image bytes for generateWithImage from a local path or an https URL.
// Bedrock image blocks carry raw bytes, so remote images are downloaded first.
package mediafetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const (
	// DefaultMaxBodySize is the default limit for one image (10 MiB).
	DefaultMaxBodySize = 10 << 20
)

var (
	// ErrUnsafeScheme is returned for URLs whose scheme is not https.
	ErrUnsafeScheme = errors.New("mediafetch: only https scheme is allowed")
	// ErrBodyTooLarge is returned when the image exceeds the size limit.
	ErrBodyTooLarge = errors.New("mediafetch: image exceeds size limit")
	// ErrUnsupportedType is returned when the content type is not image/*.
	ErrUnsupportedType = errors.New("mediafetch: unsupported content type")
)

// AllowedImagePrefixes are Content-Type prefixes accepted for images. Do not modify.
var AllowedImagePrefixes = []string{"image/"}

// Loader reads images. The zero value uses http.DefaultClient and DefaultMaxBodySize.
type Loader struct {
	Client   *http.Client
	MaxBytes int64
}

// LoadImage reads src with the zero Loader.
func LoadImage(ctx context.Context, src string) (data []byte, contentType string, err error) {
	return Loader{}.Load(ctx, src)
}

// Load reads src, which is an https URL or a local file path. Other URL schemes are rejected.
func (l Loader) Load(ctx context.Context, src string) (data []byte, contentType string, err error) {
	if src == "" {
		return nil, "", errors.New("mediafetch: empty image source")
	}
	if strings.Contains(src, "://") {
		return l.fetch(ctx, src)
	}
	return l.readFile(src)
}

func (l Loader) limit() int64 {
	if l.MaxBytes <= 0 {
		return DefaultMaxBodySize
	}
	return l.MaxBytes
}

func (l Loader) readFile(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: open image: %w", err)
	}
	defer func() { _ = f.Close() }()
	data, err := readLimited(f, l.limit())
	if err != nil {
		return nil, "", err
	}
	contentType := http.DetectContentType(data)
	if err := checkType(contentType); err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func (l Loader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: parse URL: %w", err)
	}
	if u.Scheme != "https" {
		return nil, "", ErrUnsafeScheme
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: new request: %w", err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("mediafetch: status %s", resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType != "" {
		if err := checkType(contentType); err != nil {
			return nil, "", err
		}
	}
	data, err := readLimited(resp.Body, l.limit())
	if err != nil {
		return nil, "", err
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("mediafetch: read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

func checkType(contentType string) error {
	for _, prefix := range AllowedImagePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
}
