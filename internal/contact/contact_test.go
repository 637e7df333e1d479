package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/mail"
	"github.com/lloyd-blog/edge/internal/ratelimit"
)

func TestValidateLengthBoundaries(t *testing.T) {
	valid := Submission{Name: "Jo", Email: "a@b.co", Message: strings.Repeat("x", 10)}
	errs, spam := Validate(valid)
	assert.False(t, spam)
	assert.Empty(t, errs)

	tests := []struct {
		name  string
		sub   Submission
		field string
	}{
		{"name too short", Submission{Name: "J", Email: "a@b.co", Message: strings.Repeat("x", 10)}, "name"},
		{"name too long", Submission{Name: strings.Repeat("n", 101), Email: "a@b.co", Message: strings.Repeat("x", 10)}, "name"},
		{"name padded short", Submission{Name: "  J  ", Email: "a@b.co", Message: strings.Repeat("x", 10)}, "name"},
		{"message too short", Submission{Name: "Jo", Email: "a@b.co", Message: strings.Repeat("x", 9)}, "message"},
		{"message too long", Submission{Name: "Jo", Email: "a@b.co", Message: strings.Repeat("x", 2001)}, "message"},
		{"email without tld", Submission{Name: "Jo", Email: "a@b", Message: strings.Repeat("x", 10)}, "email"},
		{"email with space", Submission{Name: "Jo", Email: "a b@c.de", Message: strings.Repeat("x", 10)}, "email"},
		{"name not a string", Submission{Name: 42, Email: "a@b.co", Message: strings.Repeat("x", 10)}, "name"},
		{"message missing", Submission{Name: "Jo", Email: "a@b.co"}, "message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, spam := Validate(tt.sub)
			assert.False(t, spam)
			assert.Len(t, errs, 1)
			assert.Contains(t, errs, tt.field)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	errs, spam := Validate(Submission{})
	assert.False(t, spam)
	assert.Equal(t, map[string]string{
		"name":    ErrMsgName,
		"email":   ErrMsgEmail,
		"message": ErrMsgMessage,
	}, errs)
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	errs, _ := Validate(Submission{Name: strings.Repeat("é", 100), Email: "a@b.co", Message: strings.Repeat("ü", 10)})
	assert.Empty(t, errs)
}

func TestValidateHoneypot(t *testing.T) {
	_, spam := Validate(Submission{Honeypot: "   "})
	assert.False(t, spam, "whitespace honeypot is empty")

	errs, spam := Validate(Submission{Honeypot: "http://spam.example"})
	assert.True(t, spam)
	assert.Nil(t, errs)

	_, spam = Validate(Submission{Honeypot: true})
	assert.True(t, spam)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "&lt;script&gt;alert(&quot;x&quot;)&lt;&#x2F;script&gt;", Sanitize(`<script>alert("x")</script>`))
	assert.Equal(t, "it&#x27;s", Sanitize("  it's  "))
	assert.Equal(t, "", Sanitize(nil))
	assert.Equal(t, "", Sanitize(12))
	assert.Equal(t, "Tom &amp; Jerry", Sanitize("Tom &amp; Jerry"))
}

func TestSanitizeIsIdempotent(t *testing.T) {
	for _, in := range []string{"<b>hi</b>", `"quoted" 'single'`, "a/b/c", "plain text"} {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), in)
		assert.NotContains(t, once, "<")
		assert.NotContains(t, once, ">")
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []*gomail.Msg
	err  error
}

func (s *recordingSender) Send(_ context.Context, m *gomail.Msg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string) (bool, error) {
	return false, errors.New("database is locked")
}

type panickingSender struct{}

func (panickingSender) Send(context.Context, *gomail.Msg) error { panic("boom") }

func newTestHandler(t *testing.T, limiter ratelimit.Limiter, sender mail.Sender) http.Handler {
	t.Helper()
	return newTestHandlerTrusting(t, limiter, sender, "")
}

func newTestHandlerTrusting(t *testing.T, limiter ratelimit.Limiter, sender mail.Sender, ipHeader string) http.Handler {
	t.Helper()
	composer, err := mail.NewComposer(mail.Identity{
		From:     "noreply@example.com",
		FromName: "Blog Contact Form",
		To:       "owner@example.com",
		Site:     "Example Blog",
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(limiter, composer, sender, ipHeader, zap.NewNop()))
	return r
}

func postJSON(t *testing.T, h http.Handler, body string, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ip != "" {
		req.RemoteAddr = net.JoinHostPort(ip, "40000")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const validBody = `{"name":"Jane Doe","email":"jane@example.org","message":"Hello there, nice blog!"}`

func TestHandlerSuccess(t *testing.T) {
	sender := &recordingSender{}
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), sender)

	rec := postJSON(t, h, validBody, "203.0.113.7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, MsgSuccess, out["message"])
	require.Equal(t, 1, sender.count())

	subject := sender.sent[0].GetGenHeader(gomail.HeaderSubject)
	require.Len(t, subject, 1)
	assert.Equal(t, "New contact form submission from Jane Doe", subject[0])
}

func TestHandlerFormEncoded(t *testing.T) {
	sender := &recordingSender{}
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), sender)

	form := url.Values{
		"name":    {"Jane <b>Doe</b>"},
		"email":   {"jane@example.org"},
		"message": {"Hello there, nice blog!"},
	}
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, sender.count())
	subject := sender.sent[0].GetGenHeader(gomail.HeaderSubject)
	require.Len(t, subject, 1)
	assert.Equal(t, "New contact form submission from Jane &lt;b&gt;Doe&lt;&#x2F;b&gt;", subject[0])
}

func TestHandlerValidationFailure(t *testing.T) {
	sender := &recordingSender{}
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), sender)

	rec := postJSON(t, h, `{"name":"J","email":"nope","message":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, MsgValidation, out["error"])
	assert.Equal(t, map[string]any{
		"name":    ErrMsgName,
		"email":   ErrMsgEmail,
		"message": ErrMsgMessage,
	}, out["errors"])
	assert.Zero(t, sender.count())
}

func TestHandlerMalformedBody(t *testing.T) {
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), &recordingSender{})

	rec := postJSON(t, h, `{"name":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, MsgBadRequest, out["error"])
	assert.Equal(t, map[string]any{}, out["errors"])
}

func TestHandlerHoneypotLooksSuccessful(t *testing.T) {
	sender := &recordingSender{}
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), sender)

	rec := postJSON(t, h, `{"name":"","email":"","message":"","honeypot":"gotcha"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true}, decode(t, rec))
	assert.Zero(t, sender.count())
}

func TestHandlerRateLimit(t *testing.T) {
	sender := &recordingSender{}
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), sender)

	for i := 0; i < 5; i++ {
		rec := postJSON(t, h, validBody, "198.51.100.1")
		require.Equal(t, http.StatusOK, rec.Code, "submission %d", i+1)
	}
	rec := postJSON(t, h, validBody, "198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, MsgRateLimited, decode(t, rec)["error"])
	assert.Equal(t, 5, sender.count())

	// Other clients are unaffected.
	rec = postJSON(t, h, validBody, "198.51.100.2")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerSendFailure(t *testing.T) {
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), &recordingSender{err: errors.New("connection refused")})

	rec := postJSON(t, h, validBody, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, MsgSendFailed, out["error"])
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestHandlerLimiterFailure(t *testing.T) {
	h := newTestHandler(t, failingLimiter{}, &recordingSender{})

	rec := postJSON(t, h, validBody, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decode(t, rec)["error"])
}

func TestHandlerRecoversPanics(t *testing.T) {
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), panickingSender{})

	rec := postJSON(t, h, validBody, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decode(t, rec)["error"])
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/contact", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientIP(req, ""))
	assert.Equal(t, "192.0.2.10", ClientIP(req, "CF-Connecting-IP"))

	req.Header.Set("CF-Connecting-IP", "203.0.113.9")
	assert.Equal(t, "192.0.2.10", ClientIP(req, ""))
	assert.Equal(t, "203.0.113.9", ClientIP(req, "CF-Connecting-IP"))

	req.Header.Set("CF-Connecting-IP", "not-an-ip")
	assert.Equal(t, "192.0.2.10", ClientIP(req, "CF-Connecting-IP"))
}

func postFromPeer(h http.Handler, peer, headerIP string) int {
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CF-Connecting-IP", headerIP)
	req.RemoteAddr = peer
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestHandlerIgnoresUntrustedIPHeader(t *testing.T) {
	h := newTestHandler(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), &recordingSender{})

	accepted := 0
	for i := 0; i < 20; i++ {
		if postFromPeer(h, "198.51.100.7:40000", fmt.Sprintf("203.0.113.%d", i+1)) == http.StatusOK {
			accepted++
		}
	}
	assert.Equal(t, 5, accepted)
}

func TestHandlerTrustedIPHeader(t *testing.T) {
	h := newTestHandlerTrusting(t, ratelimit.NewMemory(5, ratelimit.DefaultWindow), &recordingSender{}, "CF-Connecting-IP")

	// Behind the proxy every request shares one peer; the header tells
	// clients apart.
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, postFromPeer(h, "10.0.0.2:443", "203.0.113.50"), "submission %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, postFromPeer(h, "10.0.0.2:443", "203.0.113.50"))
	assert.Equal(t, http.StatusOK, postFromPeer(h, "10.0.0.2:443", "203.0.113.51"))
}
