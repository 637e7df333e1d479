package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxUpstreamBody caps how much of an upstream response is buffered.
const maxUpstreamBody = 32 << 20

// ErrTooLarge is returned when an upstream body exceeds the buffering cap.
var ErrTooLarge = errors.New("upstream body too large")

// hopHeaders are connection-scoped and never copied from upstream.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Upstream fetches assets over HTTP from another static host.
type Upstream struct {
	base   *url.URL
	client *http.Client
	limit  int64
}

var _ Origin = (*Upstream)(nil)

// NewUpstream creates an origin rooted at base. A nil client uses
// http.DefaultClient.
func NewUpstream(base *url.URL, client *http.Client) *Upstream {
	if client == nil {
		client = http.DefaultClient
	}
	return &Upstream{base: base, client: client, limit: maxUpstreamBody}
}

// Fetch issues GET base+path and buffers the response.
func (u *Upstream) Fetch(ctx context.Context, urlPath string) (*Asset, error) {
	target := *u.base
	target.Path = strings.TrimSuffix(u.base.Path, "/") + "/" + strings.TrimPrefix(urlPath, "/")
	target.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target.String(), err)
	}
	if int64(len(body)) > u.limit {
		return nil, fmt.Errorf("reading %s: %w", target.String(), ErrTooLarge)
	}

	h := resp.Header.Clone()
	for _, k := range hopHeaders {
		h.Del(k)
	}
	h.Del("Content-Length")
	return &Asset{Status: resp.StatusCode, Header: h, Body: body}, nil
}
