package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/cachestore"
)

// cacheFirst serves a fresh stored copy without touching the network.
// Otherwise it fetches, stores successful responses, and falls back to the
// stored copy (even when expired) or a 503 page if the network fails.
func (w *Worker) cacheFirst(req *http.Request, storeName string, maxAge time.Duration, unavailable string) *http.Response {
	ctx := req.Context()
	key := cachestore.RequestKey(req)
	store := w.open(ctx, storeName)

	cached := w.lookup(ctx, store, key)
	if cached != nil && !Expired(cached.Header, maxAge, w.now()) {
		return cached.Response(req)
	}

	entry, err := w.fetch(req)
	if err != nil {
		w.logger.Warn("cache-first fetch failed",
			zap.String("url", req.URL.String()),
			zap.String("store", storeName),
			zap.Error(err),
		)
		if cached != nil {
			return cached.Response(req)
		}
		return errorResponse(req, unavailable)
	}

	if storable(entry) {
		stamp(entry.Header, w.now())
		w.put(ctx, store, key, entry)
	}
	return entry.Response(req)
}

// networkFirst always asks the network, bypassing intermediate HTTP caches,
// and keeps the last good answer in the runtime store for offline use.
func (w *Worker) networkFirst(req *http.Request) *http.Response {
	ctx := req.Context()
	key := cachestore.RequestKey(req)
	store := w.open(ctx, w.gen.Runtime)

	out := req.Clone(ctx)
	out.Header.Set("Cache-Control", "no-cache")

	entry, err := w.fetch(out)
	if err != nil {
		w.logger.Warn("network-first fetch failed", zap.String("url", req.URL.String()), zap.Error(err))
		if cached := w.lookup(ctx, store, key); cached != nil {
			return cached.Response(req)
		}
		return errorResponse(req, "Service unavailable")
	}

	if storable(entry) {
		stamp(entry.Header, w.now())
		w.put(ctx, store, key, entry)
	}
	return entry.Response(req)
}

// staleWhileRevalidate answers from a fresh runtime copy immediately and
// refreshes it in the background. Without a fresh copy it waits for the
// network, then falls back to the stale copy or the offline page.
func (w *Worker) staleWhileRevalidate(req *http.Request) *http.Response {
	ctx := req.Context()
	key := cachestore.RequestKey(req)
	store := w.open(ctx, w.gen.Runtime)
	cached := w.lookup(ctx, store, key)

	result := w.revalidate(req, store, key)

	if cached != nil && !Expired(cached.Header, w.maxAge.Runtime, w.now()) {
		return cached.Response(req)
	}

	select {
	case entry := <-result:
		if entry != nil {
			return entry.Response(req)
		}
	case <-ctx.Done():
	}

	if cached != nil {
		return cached.Response(req)
	}
	return w.offlineResponse(ctx, req)
}

// revalidate starts a detached network fetch for req. Successful responses
// are written to store. The returned channel yields the fetched entry, or
// nil on failure, and is never required to be read.
func (w *Worker) revalidate(req *http.Request, store cachestore.Store, key string) <-chan *cachestore.Entry {
	result := make(chan *cachestore.Entry, 1)
	bgReq := req.Clone(context.WithoutCancel(req.Context()))

	w.bg.Add(1)
	go func() {
		defer w.bg.Done()

		entry, err := w.fetch(bgReq)
		if err != nil {
			w.logger.Warn("background revalidation failed", zap.String("url", bgReq.URL.String()), zap.Error(err))
			result <- nil
			return
		}
		if storable(entry) {
			stamp(entry.Header, w.now())
			w.put(bgReq.Context(), store, key, entry)
		}
		result <- entry
	}()

	return result
}

func (w *Worker) offlineResponse(ctx context.Context, req *http.Request) *http.Response {
	u, err := w.resolve(OfflinePath)
	if err == nil {
		e, ok, err := w.storage.Match(ctx, cachestore.URLKey(u))
		if err != nil {
			w.logger.Error("matching offline page", zap.Error(err))
		} else if ok {
			return e.Response(req)
		}
	}
	return errorResponse(req, "You are offline")
}

// fetch performs req on the network and buffers the whole response.
func (w *Worker) fetch(req *http.Request) (*cachestore.Entry, error) {
	resp, err := w.network.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	return cachestore.FromResponse(resp)
}

// lookup treats a store failure as a miss.
func (w *Worker) lookup(ctx context.Context, store cachestore.Store, key string) *cachestore.Entry {
	if store == nil {
		return nil
	}
	e, ok, err := store.Match(ctx, key)
	if err != nil {
		w.logger.Error("cache lookup failed", zap.String("store", store.Name()), zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return e
}

// put never fails the response being served.
func (w *Worker) put(ctx context.Context, store cachestore.Store, key string, e *cachestore.Entry) {
	if store == nil {
		return
	}
	if err := store.Put(ctx, key, e); err != nil {
		w.logger.Error("cache write failed", zap.String("store", store.Name()), zap.String("key", key), zap.Error(err))
	}
}

// storable reports whether e is a whole copy of the resource. Partial
// content is never stored under the plain URL key.
func storable(e *cachestore.Entry) bool {
	if e.Status < 200 || e.Status >= 300 || e.Status == http.StatusPartialContent {
		return false
	}
	return e.Header.Get("Content-Range") == ""
}

// representationHeaders select a partial or encoded variant of a resource.
// Stored entries are keyed by URL alone, so they are dropped before fetching.
var representationHeaders = []string{"Range", "If-Range", "Accept-Encoding"}

// wholeResource returns req without representation headers, cloning only
// when one is present.
func wholeResource(req *http.Request) *http.Request {
	var out *http.Request
	for _, k := range representationHeaders {
		if _, ok := req.Header[k]; !ok {
			continue
		}
		if out == nil {
			out = req.Clone(req.Context())
		}
		out.Header.Del(k)
	}
	if out == nil {
		return req
	}
	return out
}

func errorResponse(req *http.Request, message string) *http.Response {
	e := &cachestore.Entry{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:   []byte(fmt.Sprintf("<html><body><h1>Offline</h1><p>%s</p></body></html>", message)),
	}
	return e.Response(req)
}
