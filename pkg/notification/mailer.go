package notification

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"text/template"
)

const (
	SubjectValidation    = "E-mail confirmation"
	SubjectPasswordReset = "Password recovery"
)

// Mailer is the outbound e-mail surface used by the login flow.
type Mailer interface {
	SendValidation(ctx context.Context, email, link string) error
	SendPasswordReset(ctx context.Context, email, newPassword string) error
}

// Message is a rendered e-mail ready for a transport.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a rendered Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

const validationText = `Welcome!

Please confirm your e-mail address by opening the link below:

{{.Link}}
`

const validationHTML = `<p>Welcome!</p>
<p>Please confirm your e-mail address by clicking <a href="{{.Link}}">this link</a>.</p>
`

const resetText = `Your password has been reset.

Your new password is: {{.Password}}

Please change it after signing in.
`

const resetHTML = `<p>Your password has been reset.</p>
<p>Your new password is: <strong>{{.Password}}</strong></p>
<p>Please change it after signing in.</p>
`

type notice struct {
	subject string
	text    *template.Template
	html    *htmltemplate.Template
}

func newNotice(name, subject, text, html string) notice {
	return notice{
		subject: subject,
		text:    template.Must(template.New(name + ".txt").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name + ".html").Parse(html)),
	}
}

func (n notice) render(to string, data interface{}) (Message, error) {
	var text, html bytes.Buffer
	if err := n.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("failed to execute text template: %w", err)
	}
	if err := n.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return Message{To: to, Subject: n.subject, Text: text.String(), HTML: html.String()}, nil
}

// TemplateMailer renders the built-in notices and sends them through a Sender.
type TemplateMailer struct {
	sender     Sender
	validation notice
	reset      notice
}

func NewMailer(sender Sender) *TemplateMailer {
	return &TemplateMailer{
		sender:     sender,
		validation: newNotice("validation", SubjectValidation, validationText, validationHTML),
		reset:      newNotice("reset", SubjectPasswordReset, resetText, resetHTML),
	}
}

func (m *TemplateMailer) SendValidation(ctx context.Context, email, link string) error {
	if email == "" {
		return fmt.Errorf("validation e-mail requires a recipient")
	}
	msg, err := m.validation.render(email, struct{ Link string }{link})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg)
}

func (m *TemplateMailer) SendPasswordReset(ctx context.Context, email, newPassword string) error {
	if email == "" {
		return fmt.Errorf("password reset e-mail requires a recipient")
	}
	msg, err := m.reset.render(email, struct{ Password string }{newPassword})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg)
}

// ValidationLink appends the code and e-mail query parameters to base.
func ValidationLink(base, email, code string) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("email", email)
	sep := "?"
	if u, err := url.Parse(base); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return base + sep + q.Encode()
}
