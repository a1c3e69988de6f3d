package queue

import (
	"fmt"
	"strings"
	"text/template"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
}

var (
	resetText = template.Must(template.New("reset").Parse(`Hello {{.Name}},

We received a request to reset the password for your Note.Lab account.
Open the link below to choose a new password:

{{.ResetURL}}

This link expires in {{.ExpiresIn}}. If you did not request a reset, you can ignore this email.

Note.Lab`))

	changedText = template.Must(template.New("changed").Parse(`Hello {{.Name}},

The password for your Note.Lab account was just changed.
If this was not you, reset your password immediately and review your sessions.

Note.Lab`))
)

// Render builds the message for ev.
func Render(ev EmailEvent) (Message, error) {
	if strings.TrimSpace(ev.To) == "" {
		return Message{}, fmt.Errorf("email event without recipient")
	}
	if ev.Name == "" {
		ev.Name = "there"
	}
	var (
		subject string
		tpl     *template.Template
	)
	switch ev.Kind {
	case KindPasswordReset:
		if ev.ResetURL == "" {
			return Message{}, fmt.Errorf("password reset event without url")
		}
		if ev.ExpiresIn == "" {
			ev.ExpiresIn = "1 hour"
		}
		subject, tpl = "Reset your Note.Lab password", resetText
	case KindPasswordChanged:
		subject, tpl = "Your Note.Lab password was changed", changedText
	default:
		return Message{}, fmt.Errorf("unknown email kind %q", ev.Kind)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, ev); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", ev.Kind, err)
	}
	return Message{To: ev.To, Subject: subject, Text: b.String()}, nil
}
