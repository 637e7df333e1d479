// Package assets fetches the site's pre-built static files, either from a
// local directory or from another HTTP host.
package assets

import (
	"context"
	"encoding/hex"
	"net/http"

	"lukechampine.com/blake3"
)

// Asset is one fetched file. Status follows HTTP semantics; a missing file is
// reported as a 404 Asset rather than an error.
type Asset struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the asset was found.
func (a *Asset) OK() bool {
	return a.Status >= 200 && a.Status < 300
}

// Origin is a source of static assets addressed by URL path.
type Origin interface {
	Fetch(ctx context.Context, path string) (*Asset, error)
}

func notFound() *Asset {
	return &Asset{Status: http.StatusNotFound, Header: make(http.Header)}
}

// ETag returns a strong entity tag derived from the blake3 digest of body.
func ETag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
