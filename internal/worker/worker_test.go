package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lloyd-blog/edge/internal/cachestore"
)

const origin = "https://blog.example"

var errOffline = errors.New("network unreachable")

type fakeNetwork struct {
	mu      sync.Mutex
	calls   []*http.Request
	handler func(req *http.Request) (*http.Response, error)
}

func (f *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeNetwork) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func serve(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return respond(req, status, body), nil
	}
}

func offline(*http.Request) (*http.Response, error) { return nil, errOffline }

func respond(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	w       *Worker
	net     *fakeNetwork
	storage cachestore.Storage
	clock   *clock
}

func newHarness(t *testing.T, handler func(*http.Request) (*http.Response, error), precache ...string) *harness {
	t.Helper()
	u, err := url.Parse(origin)
	require.NoError(t, err)

	h := &harness{
		net:     &fakeNetwork{handler: handler},
		storage: cachestore.NewMemory(),
		clock:   &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.w = New(h.storage, h.net, zaptest.NewLogger(t), Options{
		Origin:     u,
		Generation: NewGeneration("blog", "2.0"),
		Precache:   precache,
		MaxAge:     DefaultMaxAges(),
		Now:        h.clock.Now,
	})
	return h
}

func newActiveHarness(t *testing.T, handler func(*http.Request) (*http.Response, error)) *harness {
	t.Helper()
	h := newHarness(t, handler)
	_, err := h.w.Register(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateActivated, h.w.State())
	return h
}

func (h *harness) seed(t *testing.T, store, rawURL, body string, storedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	s, err := h.storage.Open(ctx, store)
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	e := &cachestore.Entry{Status: http.StatusOK, Header: make(http.Header), Body: []byte(body)}
	if !storedAt.IsZero() {
		stamp(e.Header, storedAt)
	}
	require.NoError(t, s.Put(ctx, cachestore.URLKey(u), e))
}

func (h *harness) stored(t *testing.T, store, rawURL string) (*cachestore.Entry, bool) {
	t.Helper()
	ctx := context.Background()
	s, err := h.storage.Open(ctx, store)
	require.NoError(t, err)
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	e, ok, err := s.Match(ctx, cachestore.URLKey(u))
	require.NoError(t, err)
	return e, ok
}

func get(t *testing.T, h *harness, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := h.w.RoundTrip(httptest.NewRequest(http.MethodGet, rawURL, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestCacheFirstFreshHitSkipsNetwork(t *testing.T) {
	h := newActiveHarness(t, serve(http.StatusOK, "network"))
	gen := h.w.Generation()
	h.seed(t, gen.Images, origin+"/img/hero.png", "cached", h.clock.Now().Add(-29*day))

	resp, body := get(t, h, origin+"/img/hero.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cached", body)
	assert.Equal(t, 0, h.net.count())
}

func TestCacheFirstExpiredRefetchesAndStamps(t *testing.T) {
	h := newActiveHarness(t, serve(http.StatusOK, "fresh"))
	gen := h.w.Generation()
	h.seed(t, gen.General, origin+"/assets/css/style.css", "old", h.clock.Now().Add(-8*day))

	resp, body := get(t, h, origin+"/assets/css/style.css")
	assert.Equal(t, "fresh", body)
	assert.NotEmpty(t, resp.Header.Get(TimestampHeader))
	assert.Equal(t, 1, h.net.count())

	e, ok := h.stored(t, gen.General, origin+"/assets/css/style.css")
	require.True(t, ok)
	assert.Equal(t, "fresh", string(e.Body))
	assert.False(t, Expired(e.Header, DefaultMaxAges().Static, h.clock.Now()))
}

func TestCacheFirstNetworkFailureServesStale(t *testing.T) {
	h := newActiveHarness(t, offline)
	gen := h.w.Generation()
	h.seed(t, gen.Images, origin+"/img/old.jpg", "stale", h.clock.Now().Add(-90*day))

	resp, body := get(t, h, origin+"/img/old.jpg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stale", body)
}

func TestCacheFirstNetworkFailureWithoutCache(t *testing.T) {
	h := newActiveHarness(t, offline)

	resp, body := get(t, h, origin+"/img/missing.webp")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Image unavailable")

	_, body = get(t, h, origin+"/fonts/inter.woff2")
	assert.Contains(t, body, "Font unavailable")

	_, body = get(t, h, origin+"/assets/js/app.js")
	assert.Contains(t, body, "Asset unavailable")
}

func TestCacheFirstDoesNotStoreErrors(t *testing.T) {
	h := newActiveHarness(t, serve(http.StatusNotFound, "nope"))

	resp, _ := get(t, h, origin+"/img/gone.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, ok := h.stored(t, h.w.Generation().Images, origin+"/img/gone.png")
	assert.False(t, ok)
}

func TestFontsNeverExpire(t *testing.T) {
	h := newActiveHarness(t, serve(http.StatusOK, "network"))
	h.seed(t, h.w.Generation().Fonts, origin+"/fonts/inter-var.woff2", "font", h.clock.Now().Add(-5*365*day))

	_, body := get(t, h, origin+"/fonts/inter-var.woff2")
	assert.Equal(t, "font", body)
	assert.Equal(t, 0, h.net.count())
}

func TestNetworkFirst(t *testing.T) {
	h := newActiveHarness(t, serve(http.StatusOK, `{"posts":[]}`))

	_, body := get(t, h, origin+"/index.json")
	assert.Equal(t, `{"posts":[]}`, body)
	require.Equal(t, 1, h.net.count())
	assert.Equal(t, "no-cache", h.net.calls[0].Header.Get("Cache-Control"))

	e, ok := h.stored(t, h.w.Generation().Runtime, origin+"/index.json")
	require.True(t, ok)
	assert.Equal(t, `{"posts":[]}`, string(e.Body))

	// Offline: the last good runtime copy is served.
	h.net.handler = offline
	_, body = get(t, h, origin+"/index.json")
	assert.Equal(t, `{"posts":[]}`, body)

	resp, body := get(t, h, origin+"/api/comments")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "Service unavailable")
}

func TestStaleWhileRevalidateFreshHitDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	h := newActiveHarness(t, func(req *http.Request) (*http.Response, error) {
		<-release
		return respond(req, http.StatusOK, "updated"), nil
	})
	runtime := h.w.Generation().Runtime
	h.seed(t, runtime, origin+"/posts/hello/", "cached page", h.clock.Now().Add(-time.Hour))

	resp, body := get(t, h, origin+"/posts/hello/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cached page", body)

	// The background fetch is still blocked; nothing has been refreshed yet.
	e, _ := h.stored(t, runtime, origin+"/posts/hello/")
	assert.Equal(t, "cached page", string(e.Body))

	close(release)
	h.w.Wait()

	assert.Equal(t, 1, h.net.count())
	e, _ = h.stored(t, runtime, origin+"/posts/hello/")
	assert.Equal(t, "updated", string(e.Body))
}

func TestStaleWhileRevalidateExpiredWaitsForNetwork(t *testing.T) {
	h := newActiveHarness(t, serve(http.StatusOK, "new"))
	runtime := h.w.Generation().Runtime
	h.seed(t, runtime, origin+"/about/", "old", h.clock.Now().Add(-2*day))

	_, body := get(t, h, origin+"/about/")
	assert.Equal(t, "new", body)
	h.w.Wait()
}

func TestStaleWhileRevalidateOfflineFallbacks(t *testing.T) {
	h := newActiveHarness(t, offline)
	gen := h.w.Generation()

	// Stale copy beats the offline page.
	h.seed(t, gen.Runtime, origin+"/archive/", "stale archive", h.clock.Now().Add(-3*day))
	_, body := get(t, h, origin+"/archive/")
	assert.Equal(t, "stale archive", body)

	// No copy and no offline page: synthesized 503.
	resp, body := get(t, h, origin+"/tags/")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "You are offline")

	// Precached offline page is used once present.
	h.seed(t, gen.General, origin+OfflinePath, "offline page", h.clock.Now())
	resp, body = get(t, h, origin+"/tags/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "offline page", body)

	h.w.Wait()
}

func TestPassthrough(t *testing.T) {
	h := newHarness(t, serve(http.StatusOK, "network"))
	h.seed(t, h.w.Generation().Images, origin+"/img/a.png", "cached", time.Time{})

	// Not yet activated: no interception.
	_, body := get(t, h, origin+"/img/a.png")
	assert.Equal(t, "network", body)

	_, err := h.w.Register(context.Background())
	require.NoError(t, err)

	_, body = get(t, h, origin+"/img/a.png")
	assert.Equal(t, "cached", body)

	// Cross-origin requests go straight to the network.
	_, body = get(t, h, "https://cdn.other.example/img/a.png")
	assert.Equal(t, "network", body)

	// So do non-GET requests.
	resp, err := h.w.RoundTrip(httptest.NewRequest(http.MethodPost, origin+"/contact", strings.NewReader("x")))
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "network", string(b))
}

func TestPartialResponsesAreNotStored(t *testing.T) {
	h := newActiveHarness(t, func(req *http.Request) (*http.Response, error) {
		resp := respond(req, http.StatusPartialContent, "PART")
		resp.Header.Set("Content-Range", "bytes 0-3/12")
		return resp, nil
	})
	gen := h.w.Generation()

	resp, body := get(t, h, origin+"/img/photo.png")
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "PART", body)
	_, ok := h.stored(t, gen.Images, origin+"/img/photo.png")
	assert.False(t, ok)

	get(t, h, origin+"/index.json")
	_, ok = h.stored(t, gen.Runtime, origin+"/index.json")
	assert.False(t, ok)

	// A 200 carrying Content-Range is still only part of the resource.
	h.net.handler = func(req *http.Request) (*http.Response, error) {
		resp := respond(req, http.StatusOK, "PART")
		resp.Header.Set("Content-Range", "bytes 0-3/12")
		return resp, nil
	}
	get(t, h, origin+"/img/photo.png")
	_, ok = h.stored(t, gen.Images, origin+"/img/photo.png")
	assert.False(t, ok)
	assert.Equal(t, 3, h.net.count())
}

func TestRangeHeaderNotForwarded(t *testing.T) {
	h := newActiveHarness(t, serve(http.StatusOK, "whole"))

	req := httptest.NewRequest(http.MethodGet, origin+"/fonts/inter.woff2", nil)
	req.Header.Set("Range", "bytes=10-")
	req.Header.Set("If-Range", `"abc"`)
	resp, err := h.w.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 1, h.net.count())
	assert.Empty(t, h.net.calls[0].Header.Get("Range"))
	assert.Empty(t, h.net.calls[0].Header.Get("If-Range"))
	// The caller's request is left untouched.
	assert.Equal(t, "bytes=10-", req.Header.Get("Range"))

	e, ok := h.stored(t, h.w.Generation().Fonts, origin+"/fonts/inter.woff2")
	require.True(t, ok)
	assert.Equal(t, "whole", string(e.Body))
}
