package mail

import (
	"context"
	"log"
	"sort"
	"strings"
)

type Template string

const (
	TemplateVerifyEmail   Template = "verify-email"
	TemplateResetPassword Template = "reset-password"
	TemplateWelcomeBack   Template = "welcome-back"
)

// Mailer delivers a templated message. Implementations may block on the network;
// wrap them in Async when the caller must not wait.
type Mailer interface {
	Send(ctx context.Context, to string, tmpl Template, fields map[string]string) error
}

// LogMailer writes messages to the process log instead of sending them. Used in
// development, where the OTP code is needed from the console.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (LogMailer) Send(_ context.Context, to string, tmpl Template, fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(fields[k])
	}
	log.Printf("[DEV-EMAIL] to=%s template=%s%s", to, tmpl, b.String())
	return nil
}
