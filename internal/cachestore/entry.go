package cachestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Entry is a stored response. It is a value snapshot: stores copy entries on
// the way in and out so callers may mutate what they hold.
type Entry struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	return &Entry{
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   body,
	}
}

// Response builds an *http.Response carrying a copy of the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// FromResponse drains resp.Body into a new entry and closes it.
func FromResponse(resp *http.Response) (*Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Entry{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// RequestKey returns the cache identity of a request: method plus absolute
// URL with the fragment dropped.
func RequestKey(req *http.Request) string {
	return req.Method + " " + normalizeURL(req.URL)
}

// URLKey returns the identity a GET for u would have.
func URLKey(u *url.URL) string {
	return http.MethodGet + " " + normalizeURL(u)
}

func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
