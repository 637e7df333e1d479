package contact

import "strings"

var htmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Sanitize escapes the HTML-significant characters < > " ' / in v and trims
// surrounding whitespace. Anything that is not a string becomes "".
//
// Ampersands are left alone, so already-escaped text passes through
// unchanged rather than being double-encoded.
func Sanitize(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(htmlEscaper.Replace(s))
}

// Sanitized is a submission that is safe to embed in HTML.
type Sanitized struct {
	Name    string
	Email   string
	Message string
}

// SanitizeSubmission escapes every user-visible field of sub.
func SanitizeSubmission(sub Submission) Sanitized {
	return Sanitized{
		Name:    Sanitize(sub.Name),
		Email:   Sanitize(sub.Email),
		Message: Sanitize(sub.Message),
	}
}
