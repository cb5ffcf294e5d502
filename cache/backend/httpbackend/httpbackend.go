// Package httpbackend is a backend.Adapter that fetches attributes,
// byte ranges, and directory listings from an authoritative HTTP
// origin server: HEAD for existence and size, GET with a Range header
// for partial reads, and a GET with a readdir query parameter for
// directory listings, with prometheus hit/miss counters on each.
package httpbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/akarasulu/cachefs/cache"
	"github.com/akarasulu/cachefs/cache/backend"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachefs_http_backend_hits",
		Help: "The total number of successful HTTP backend requests",
	})
	requestMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachefs_http_backend_misses",
		Help: "The total number of HTTP backend requests answered 404",
	})
)

// Adapter is a backend.Adapter backed by an HTTP origin. The origin
// is expected to answer:
//   - HEAD <baseURL><path> with Content-Length, Last-Modified, and the
//     custom headers X-Cachefs-Ctime, X-Cachefs-Isdir, X-Cachefs-Mode,
//     X-Cachefs-Uid, X-Cachefs-Gid and X-Cachefs-Ino;
//   - GET <baseURL><path> with a Range header for ReadRange;
//   - GET <baseURL><path>?readdir=1 returning a JSON array of
//     {"name": "...", "is_dir": bool} for Readdir.
type Adapter struct {
	client  *http.Client
	baseURL *url.URL
	logger  cache.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClient overrides the default *http.Client.
func WithClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithLogger sets the logger used for access logging.
func WithLogger(l cache.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New returns an Adapter whose origin is baseURL.
func New(baseURL *url.URL, opts ...Option) *Adapter {
	a := &Adapter{
		client:  http.DefaultClient,
		baseURL: baseURL,
		logger:  nil,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

func (a *Adapter) requestURL(path string, query string) string {
	u := fmt.Sprintf("%s%s", a.baseURL.String(), path)
	if query != "" {
		u = u + "?" + query
	}
	return u
}

// Stat issues a HEAD request and translates the response headers into
// a backend.Stat. backend.ErrNotExist is returned for a 404.
func (a *Adapter) Stat(ctx context.Context, path string) (backend.Stat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.requestURL(path, ""), nil)
	if err != nil {
		return backend.Stat{}, err
	}

	rsp, err := a.client.Do(req)
	if err != nil {
		return backend.Stat{}, err
	}
	defer rsp.Body.Close()

	a.logf("HTTP HEAD %d %s", rsp.StatusCode, req.URL)

	if rsp.StatusCode == http.StatusNotFound {
		requestMisses.Inc()
		return backend.Stat{}, backend.ErrNotExist
	}
	if rsp.StatusCode != http.StatusOK {
		requestMisses.Inc()
		return backend.Stat{}, fmt.Errorf("httpbackend: stat %s: unexpected status %d", path, rsp.StatusCode)
	}
	requestHits.Inc()

	st := backend.Stat{
		IsDir: rsp.Header.Get("X-Cachefs-Isdir") == "1",
	}

	if v := rsp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.Size = n
		}
	}
	if v := rsp.Header.Get("X-Cachefs-Mtime"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.Mtime = n
		}
	} else if lm := rsp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			st.Mtime = t.Unix()
		}
	}
	if v := rsp.Header.Get("X-Cachefs-Ctime"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.Ctime = n
		}
	}
	if v := rsp.Header.Get("X-Cachefs-Mode"); v != "" {
		if n, err := strconv.ParseUint(v, 8, 32); err == nil {
			st.Mode = uint32(n)
		}
	}
	if v := rsp.Header.Get("X-Cachefs-Uid"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			st.UID = uint32(n)
		}
	}
	if v := rsp.Header.Get("X-Cachefs-Gid"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			st.GID = uint32(n)
		}
	}
	if v := rsp.Header.Get("X-Cachefs-Ino"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			st.Ino = n
		}
	}

	return st, nil
}

// ReadRange issues a GET with a Range header covering [offset, offset+size).
func (a *Adapter) ReadRange(ctx context.Context, path string, offset, size int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.requestURL(path, ""), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))

	rsp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}

	a.logf("HTTP GET %d %s", rsp.StatusCode, req.URL)

	switch rsp.StatusCode {
	case http.StatusNotFound:
		rsp.Body.Close()
		requestMisses.Inc()
		return nil, backend.ErrNotExist
	case http.StatusOK, http.StatusPartialContent:
		requestHits.Inc()
		return rsp.Body, nil
	default:
		rsp.Body.Close()
		requestMisses.Inc()
		return nil, fmt.Errorf("httpbackend: read %s: unexpected status %d", path, rsp.StatusCode)
	}
}

type readdirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// Readdir issues a GET with a readdir=1 query parameter and expects a
// JSON array body of {name, is_dir} objects.
func (a *Adapter) Readdir(ctx context.Context, path string) ([]backend.DirEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.requestURL(path, "readdir=1"), nil)
	if err != nil {
		return nil, err
	}

	rsp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	a.logf("HTTP GET %d %s", rsp.StatusCode, req.URL)

	if rsp.StatusCode == http.StatusNotFound {
		requestMisses.Inc()
		return nil, backend.ErrNotExist
	}
	if rsp.StatusCode != http.StatusOK {
		requestMisses.Inc()
		return nil, fmt.Errorf("httpbackend: readdir %s: unexpected status %d", path, rsp.StatusCode)
	}
	requestHits.Inc()

	var raw []readdirEntry
	if err := json.NewDecoder(rsp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("httpbackend: readdir %s: decode response: %w", path, err)
	}

	entries := make([]backend.DirEntry, len(raw))
	for i, e := range raw {
		entries[i] = backend.DirEntry{Name: e.Name, IsDir: e.IsDir}
	}
	return entries, nil
}
