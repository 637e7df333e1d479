package server

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/assets"
)

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	a := s.fetch(r, r.URL.Path)
	if a == nil || a.Status >= http.StatusBadRequest {
		s.notFound(w, r)
		return
	}

	h := w.Header()
	for k, v := range a.Header {
		if _, fixed := securityHeaders[k]; fixed {
			continue
		}
		h[k] = append([]string(nil), v...)
	}
	if cc := CacheControl(r.URL.Path); cc != "" {
		h.Set("Cache-Control", cc)
	}

	if etag := a.Header.Get("ETag"); etag != "" && a.OK() && etagMatch(r.Header.Get("If-None-Match"), etag) {
		h.Del("Content-Length")
		h.Del("Content-Type")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Length", strconv.Itoa(len(a.Body)))
	w.WriteHeader(a.Status)
	w.Write(a.Body)
}

func (s *Server) serveWorkerScript(w http.ResponseWriter, r *http.Request) {
	a := s.fetch(r, s.cfg.WorkerScript)
	if a == nil || !a.OK() {
		s.serveAsset(w, r)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/javascript")
	h.Set("Service-Worker-Allowed", "/")
	h.Set("Cache-Control", cacheRevalidate)
	h.Set("Content-Length", strconv.Itoa(len(a.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Body)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	if page := s.fetch(r, s.cfg.NotFoundPage); page != nil && page.OK() {
		h.Set("Content-Type", "text/html; charset=utf-8")
		h.Set("Content-Length", strconv.Itoa(len(page.Body)))
		w.WriteHeader(http.StatusNotFound)
		w.Write(page.Body)
		return
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("Page not found"))
}

// fetch asks the origin for path. Origin failures are logged and reported as
// a missing asset.
func (s *Server) fetch(r *http.Request, path string) *assets.Asset {
	a, err := s.assets.Fetch(r.Context(), path)
	if err != nil {
		s.logger.Warn("fetching asset", zap.String("path", path), zap.Error(err))
		return nil
	}
	return a
}

// etagMatch implements the weak comparison of If-None-Match.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	etag = strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
