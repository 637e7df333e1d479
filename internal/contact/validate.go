// Package contact handles contact form submissions: validation, honeypot
// spam detection, sanitization, rate limiting and email delivery.
package contact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field length bounds, counted in characters after trimming.
const (
	NameMinLen    = 2
	NameMaxLen    = 100
	MessageMinLen = 10
	MessageMaxLen = 2000
)

// Per-field validation messages.
const (
	ErrMsgName    = "Name must be 2-100 characters"
	ErrMsgEmail   = "Please enter a valid email address"
	ErrMsgMessage = "Message must be 10-2000 characters"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Submission is a raw contact form payload. Fields are untyped because JSON
// clients may send anything; form-encoded fields are always strings.
type Submission struct {
	Name     any `json:"name"`
	Email    any `json:"email"`
	Message  any `json:"message"`
	Honeypot any `json:"honeypot"`
}

// Validate checks sub. spam is true when the honeypot field is filled, in
// which case no field checks are run. Otherwise errs maps each invalid field
// to its message; an empty map means the submission is valid.
func Validate(sub Submission) (errs map[string]string, spam bool) {
	if honeypotFilled(sub.Honeypot) {
		return nil, true
	}

	errs = make(map[string]string)
	if !lengthBetween(sub.Name, NameMinLen, NameMaxLen) {
		errs["name"] = ErrMsgName
	}
	if s, ok := sub.Email.(string); !ok || !emailPattern.MatchString(strings.TrimSpace(s)) {
		errs["email"] = ErrMsgEmail
	}
	if !lengthBetween(sub.Message, MessageMinLen, MessageMaxLen) {
		errs["message"] = ErrMsgMessage
	}
	return errs, false
}

func honeypotFilled(v any) bool {
	switch hp := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(hp) != ""
	default:
		// Real browsers only ever send the hidden field as a string.
		return true
	}
}

func lengthBetween(v any, lo, hi int) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= lo && n <= hi
}
