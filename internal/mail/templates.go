package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

type rendered struct {
	Subject string
	HTML    string
}

type templateDef struct {
	subject string
	body    *template.Template
}

var templates = map[Template]templateDef{
	TemplateVerifyEmail: {
		subject: "Confirm your email address",
		body: template.Must(template.New(string(TemplateVerifyEmail)).Parse(`<p>Hello {{.username}},</p>
<p>Your verification code is <strong>{{.otp}}</strong>. It expires in 15 minutes.</p>
<p><a href="{{.link}}">Verify your email</a></p>`)),
	},
	TemplateResetPassword: {
		subject: "Reset your password",
		body: template.Must(template.New(string(TemplateResetPassword)).Parse(`<p>Hello {{.username}},</p>
<p>Use the code <strong>{{.otp}}</strong> to reset your password. It expires in 15 minutes.</p>
<p><a href="{{.link}}">Choose a new password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>`)),
	},
	TemplateWelcomeBack: {
		subject: "Your account has been restored",
		body: template.Must(template.New(string(TemplateWelcomeBack)).Parse(`<p>Hello {{.username}},</p>
<p>Your account was reactivated. Confirm your email address with the code <strong>{{.otp}}</strong>.</p>
<p><a href="{{.link}}">Verify your email</a></p>`)),
	},
}

func render(tmpl Template, fields map[string]string) (rendered, error) {
	def, ok := templates[tmpl]
	if !ok {
		return rendered{}, fmt.Errorf("unknown mail template %q", tmpl)
	}
	var buf bytes.Buffer
	if err := def.body.Execute(&buf, fields); err != nil {
		return rendered{}, fmt.Errorf("render %s: %w", tmpl, err)
	}
	return rendered{Subject: def.subject, HTML: buf.String()}, nil
}
