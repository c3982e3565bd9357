package notify

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"
)

var (
	verifyHTML = htmltemplate.Must(htmltemplate.New("verify").Parse(
		`<p>Hi {{.Name}},</p>
<p>Confirm your email address to finish creating your account:</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>This link expires in {{.Expires}}. If you did not sign up, ignore this message.</p>`))
	verifyText = texttemplate.Must(texttemplate.New("verify").Parse(
		`Hi {{.Name}},

Confirm your email address to finish creating your account:
{{.Link}}

This link expires in {{.Expires}}. If you did not sign up, ignore this message.
`))
	resetHTML = htmltemplate.Must(htmltemplate.New("reset").Parse(
		`<p>A password reset was requested for {{.Name}}.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>This link expires in {{.Expires}}. If you did not request it, ignore this message.</p>`))
	resetText = texttemplate.Must(texttemplate.New("reset").Parse(
		`A password reset was requested for {{.Name}}.

Choose a new password:
{{.Link}}

This link expires in {{.Expires}}. If you did not request it, ignore this message.
`))
)

// Templates renders link emails against an application base URL.
type Templates struct {
	BaseURL   string
	VerifyTTL time.Duration
	ResetTTL  time.Duration
}

type linkData struct {
	Name    string
	Link    string
	Expires string
}

// Verification renders the registration confirmation email.
func (t Templates) Verification(to, username, token string) (Message, error) {
	return t.render("verification", "Verify your email", to, username, t.link("verify", token), t.VerifyTTL, verifyHTML, verifyText)
}

// PasswordReset renders the password reset email.
func (t Templates) PasswordReset(to, token string) (Message, error) {
	return t.render("password_reset", "Reset your password", to, to, t.link("reset-password", token), t.ResetTTL, resetHTML, resetText)
}

func (t Templates) link(route, token string) string {
	return strings.TrimRight(t.BaseURL, "/") + "/" + route + "/" + url.PathEscape(token)
}

func (t Templates) render(kind, subject, to, name, link string, ttl time.Duration, h *htmltemplate.Template, x *texttemplate.Template) (Message, error) {
	data := linkData{Name: name, Link: link, Expires: humanDuration(ttl)}

	var html, text bytes.Buffer
	if err := h.Execute(&html, data); err != nil {
		return Message{}, err
	}
	if err := x.Execute(&text, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
		Kind:    kind,
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short time"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
