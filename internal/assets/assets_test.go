package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siteFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":              {Data: []byte("<h1>home</h1>")},
		"404.html":                {Data: []byte("<h1>lost</h1>")},
		"about.html":              {Data: []byte("<h1>about</h1>")},
		"posts/index.html":        {Data: []byte("<h1>posts</h1>")},
		"posts/hello/index.html":  {Data: []byte("<h1>hello</h1>")},
		"css/style.css":           {Data: []byte("body{}")},
		"js/service-worker.js":    {Data: []byte("self.addEventListener('fetch', () => {})")},
		"fonts/inter.woff2":       {Data: []byte("wOF2")},
		"images/logo.png":         {Data: []byte("\x89PNG\r\n\x1a\n")},
		"feeds/atom.unknownextzz": {Data: []byte("plain")},
	}
}

func TestDirResolution(t *testing.T) {
	d := NewDir(siteFS())
	ctx := context.Background()

	tests := []struct {
		path string
		body string
	}{
		{"/", "<h1>home</h1>"},
		{"/index.html", "<h1>home</h1>"},
		{"/posts/", "<h1>posts</h1>"},
		{"/posts", "<h1>posts</h1>"},
		{"/posts/hello", "<h1>hello</h1>"},
		{"/about", "<h1>about</h1>"},
		{"/css/style.css", "body{}"},
		{"/../css/style.css", "body{}"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			a, err := d.Fetch(ctx, tt.path)
			require.NoError(t, err)
			require.True(t, a.OK(), "status %d", a.Status)
			assert.Equal(t, tt.body, string(a.Body))
		})
	}
}

func TestDirNotFound(t *testing.T) {
	d := NewDir(siteFS())
	for _, p := range []string{"/missing", "/missing.css", "/css/", "/images"} {
		a, err := d.Fetch(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, a.Status, p)
		assert.False(t, a.OK())
	}
}

func TestDirHeaders(t *testing.T) {
	d := NewDir(siteFS())

	a, err := d.Fetch(context.Background(), "/css/style.css")
	require.NoError(t, err)
	assert.Contains(t, a.Header.Get("Content-Type"), "text/css")
	assert.Equal(t, "6", a.Header.Get("Content-Length"))
	assert.Equal(t, ETag([]byte("body{}")), a.Header.Get("ETag"))

	a, err = d.Fetch(context.Background(), "/feeds/atom.unknownextzz")
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", a.Header.Get("Content-Type"))
}

func TestETag(t *testing.T) {
	a := ETag([]byte("one"))
	assert.Equal(t, a, ETag([]byte("one")))
	assert.NotEqual(t, a, ETag([]byte("two")))
	assert.Len(t, a, 34)
	assert.Equal(t, byte('"'), a[0])
}

func TestUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/site/css/style.css":
			w.Header().Set("Content-Type", "text/css")
			w.Header().Set("Connection", "keep-alive")
			w.Write([]byte("body{}"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL + "/site/")
	require.NoError(t, err)
	up := NewUpstream(base, srv.Client())

	a, err := up.Fetch(context.Background(), "/css/style.css")
	require.NoError(t, err)
	assert.True(t, a.OK())
	assert.Equal(t, "body{}", string(a.Body))
	assert.Equal(t, "text/css", a.Header.Get("Content-Type"))
	assert.Empty(t, a.Header.Get("Connection"))

	a, err = up.Fetch(context.Background(), "/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, a.Status)
}

func TestUpstreamRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 17)))
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	up := NewUpstream(base, srv.Client())

	up.limit = 17
	a, err := up.Fetch(context.Background(), "/big.bin")
	require.NoError(t, err)
	assert.Len(t, a.Body, 17)

	up.limit = 16
	_, err = up.Fetch(context.Background(), "/big.bin")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestUpstreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base, _ := url.Parse(srv.URL)
	srv.Close()

	_, err := NewUpstream(base, nil).Fetch(context.Background(), "/")
	assert.Error(t, err)
}

func TestManifest(t *testing.T) {
	paths, err := Manifest(siteFS(), []string{"/", "/offline.html", "/css/style.css"}, []string{"css/**/*.css", "posts/**/index.html", "fonts/*.woff2"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/",
		"/offline.html",
		"/css/style.css",
		"/fonts/inter.woff2",
		"/posts/hello/",
		"/posts/",
	}, paths)
}

func TestManifestWithoutFS(t *testing.T) {
	paths, err := Manifest(nil, []string{"/a", "/a", "/b"}, []string{"**/*.css"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, paths)
}

func TestManifestBadPattern(t *testing.T) {
	_, err := Manifest(siteFS(), nil, []string{"css/[.css"})
	assert.Error(t, err)
}
