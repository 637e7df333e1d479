// Package mail composes contact notification emails and hands them to a
// delivery transport.
package mail

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// Identity is the fixed sender and recipient of contact emails.
type Identity struct {
	From     string
	FromName string
	To       string
	Site     string
}

// Contact is the already-sanitized content of one submission. Fields are
// embedded into the HTML body verbatim.
type Contact struct {
	ID         string
	Name       string
	Email      string
	Message    string
	ReceivedAt time.Time
}

// Composer builds notification messages.
type Composer struct {
	id   Identity
	tmpl *template.Template
}

// NewComposer checks the identity addresses and parses the body template.
func NewComposer(id Identity) (*Composer, error) {
	probe := gomail.NewMsg()
	if err := probe.FromFormat(id.FromName, id.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", id.From, err)
	}
	if err := probe.To(id.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", id.To, err)
	}

	tmpl, err := template.New("contact").Parse(contactTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing contact template: %w", err)
	}
	return &Composer{id: id, tmpl: tmpl}, nil
}

// Compose renders c into a MIME HTML message.
func (c *Composer) Compose(contact Contact) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(c.id.FromName, c.id.From); err != nil {
		return nil, fmt.Errorf("setting sender: %w", err)
	}
	if err := m.To(c.id.To); err != nil {
		return nil, fmt.Errorf("setting recipient: %w", err)
	}
	// Replies go to the visitor when the address survives parsing; the
	// notification is still worth sending when it does not.
	_ = m.ReplyTo(contact.Email)

	m.Subject(fmt.Sprintf("New contact form submission from %s", contact.Name))
	m.SetDate()
	m.SetMessageID()

	body, err := c.render(contact)
	if err != nil {
		return nil, err
	}
	m.SetBodyString(gomail.TypeTextHTML, body)
	return m, nil
}

func (c *Composer) render(contact Contact) (string, error) {
	var body bytes.Buffer
	data := struct {
		Contact
		Site string
	}{contact, c.id.Site}
	if err := c.tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("rendering contact template: %w", err)
	}
	return body.String(), nil
}

// Raw serializes m as an RFC 5322 message.
func Raw(m *gomail.Msg) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serializing message: %w", err)
	}
	return buf.Bytes(), nil
}
