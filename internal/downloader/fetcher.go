package downloader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ByteRange is an inclusive byte range
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Len returns the number of bytes in the range
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// Fetcher is the transport used to move bytes
type Fetcher interface {
	// Size reports the total size of the resource
	Size(ctx context.Context, url string) (int64, error)
	// Fetch writes the resource, or the given range of it, to w
	Fetch(ctx context.Context, url string, w io.Writer, rng *ByteRange) error
}

// HTTPFetcher implements Fetcher with HEAD and ranged GET requests
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with fixed connect and response timeouts
func NewHTTPFetcher(connectTimeout, readTimeout time.Duration, insecureTLS bool) *HTTPFetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPFetcher{
		client: &http.Client{Transport: transport},
	}
}

// Size issues a HEAD request and returns Content-Length
func (f *HTTPFetcher) Size(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build HEAD request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s failed: %w", url, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HEAD %s returned status %d", url, resp.StatusCode)
	}
	if resp.ContentLength <= 0 {
		return 0, fmt.Errorf("HEAD %s returned no content length", url)
	}

	return resp.ContentLength, nil
}

// Fetch issues a GET request, optionally limited to rng
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, w io.Writer, rng *ByteRange) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build GET request: %w", err)
	}
	if rng != nil {
		req.Header.Set("Range", rng.header())
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case rng != nil && resp.StatusCode != http.StatusPartialContent:
		return fmt.Errorf("GET %s range %s returned status %d", url, rng.header(), resp.StatusCode)
	case rng == nil && (resp.StatusCode < 200 || resp.StatusCode > 299):
		return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if rng != nil {
		body = io.LimitReader(resp.Body, rng.Len())
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return fmt.Errorf("GET %s interrupted after %d bytes: %w", url, n, err)
	}
	if rng != nil && n != rng.Len() {
		return fmt.Errorf("GET %s range %s short read: %d of %d bytes", url, rng.header(), n, rng.Len())
	}

	return nil
}
