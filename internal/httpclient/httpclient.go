// Package httpclient is the shared HTTP client for resolving stream manifests:
// cookie jar, compressed responses (br, gzip) and one-shot retries.
package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultTimeout         = 20 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	UserAgent              = "pbtv/1.0"
)

// New returns a client with a public-suffix aware cookie jar and br/gzip decoding.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{
		Timeout: timeout,
		Jar:     jar,
		Transport: &decodingTransport{base: &http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			MaxIdleConns:       16,
			IdleConnTimeout:    DefaultIdleConnTimeout,
			DisableCompression: true,
		}},
	}
}

// decodingTransport asks for br/gzip and decodes the body so callers always read plain bytes.
type decodingTransport struct {
	base http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" || req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		if req.Header.Get("Accept-Encoding") == "" {
			req.Header.Set("Accept-Encoding", "br, gzip")
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", UserAgent)
		}
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func decodeBody(resp *http.Response) error {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		if resp.ContentLength == 0 {
			return nil
		}
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		r = zr
	default:
		return nil
	}
	resp.Body = &decodedBody{Reader: r, closer: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type decodedBody struct {
	io.Reader
	closer io.Closer
}

func (b *decodedBody) Close() error { return b.closer.Close() }
