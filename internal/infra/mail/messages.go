package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/RASA-RCS/userauth-service/internal/core/port"
)

const (
	SubjectLoginOTP      = "Your Login OTP Code"
	SubjectVerifyEmail   = "Verify Your Email"
	SubjectPasswordReset = "Password Reset Request"
	SubjectLogoutNotice  = "Logout Successful"
)

var (
	otpHTML = template.Must(template.New("otp").Parse(
		`<p>Your OTP for login is:</p><h2>{{.Code}}</h2><p>It will expire in {{.Minutes}} minutes.</p>`))

	verifyHTML = template.Must(template.New("verify").Parse(`<!doctype html>
<html lang="en-US">
<head><meta charset="UTF-8"><title>Verify Your Email</title></head>
<body style="margin:0;padding:0;background-color:#f2f3f8;font-family:'Open Sans',sans-serif;">
<h1 style="color:#1e1e2d;font-weight:500;">Thank you for registering!</h1>
<p>Please confirm your email address by clicking the button below.</p>
<p><a href="{{.Link}}" style="background:#20e277;color:#fff;padding:10px 24px;border-radius:50px;text-decoration:none;">Verify Email</a></p>
<p>This link expires in {{.Minutes}} minutes.</p>
</body>
</html>`))

	resetHTML = template.Must(template.New("reset").Parse(`<!doctype html>
<html lang="en-US">
<head><meta charset="UTF-8"><title>Reset Password Email</title></head>
<body style="margin:0;padding:0;background-color:#f2f3f8;font-family:'Open Sans',sans-serif;">
<h1 style="color:#1e1e2d;font-weight:500;">You have requested to reset your password</h1>
<p>We cannot simply send you your old password. A unique link to reset your password has been generated for you.</p>
<p><a href="{{.Link}}" style="background:#20e277;color:#fff;padding:10px 24px;border-radius:50px;text-decoration:none;">Reset Password</a></p>
<p>This link expires in {{.Minutes}} minutes.</p>
</body>
</html>`))

	logoutHTML = template.Must(template.New("logout").Parse(
		`<p>Hello <strong>{{.Name}}</strong>,</p><p>Your account has been <strong>logged out successfully</strong>.</p>`))
)

// LoginOTPMessage renders the one-time code mail.
func LoginOTPMessage(to string, code int, ttl time.Duration) (port.MailMessage, error) {
	data := struct {
		Code    string
		Minutes int
	}{Code: fmt.Sprintf("%06d", code), Minutes: minutes(ttl)}

	html, err := render(otpHTML, data)
	if err != nil {
		return port.MailMessage{}, err
	}
	return port.MailMessage{
		To:      to,
		Subject: SubjectLoginOTP,
		Text:    fmt.Sprintf("Your OTP for login is: %s. It is valid for %d minutes.", data.Code, data.Minutes),
		HTML:    html,
	}, nil
}

// VerificationMessage renders the email confirmation mail.
func VerificationMessage(to, link string, ttl time.Duration) (port.MailMessage, error) {
	return linkMessage(verifyHTML, to, SubjectVerifyEmail, link, ttl,
		"Thank you for registering! Verify your email address: %s")
}

// PasswordResetMessage renders the password reset mail.
func PasswordResetMessage(to, link string, ttl time.Duration) (port.MailMessage, error) {
	return linkMessage(resetHTML, to, SubjectPasswordReset, link, ttl,
		"Reset your password using the following link: %s")
}

// LogoutNoticeMessage renders the logout confirmation mail.
func LogoutNoticeMessage(to, name string) (port.MailMessage, error) {
	if strings.TrimSpace(name) == "" {
		name = "User"
	}
	html, err := render(logoutHTML, struct{ Name string }{name})
	if err != nil {
		return port.MailMessage{}, err
	}
	return port.MailMessage{
		To:      to,
		Subject: SubjectLogoutNotice,
		Text:    fmt.Sprintf("Hello %s,\nYour account has been logged out successfully.", name),
		HTML:    html,
	}, nil
}

func linkMessage(tpl *template.Template, to, subject, link string, ttl time.Duration, textFormat string) (port.MailMessage, error) {
	html, err := render(tpl, struct {
		Link    string
		Minutes int
	}{link, minutes(ttl)})
	if err != nil {
		return port.MailMessage{}, err
	}
	return port.MailMessage{
		To:      to,
		Subject: subject,
		Text:    fmt.Sprintf(textFormat, link),
		HTML:    html,
	}, nil
}

func render(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}

func minutes(d time.Duration) int {
	m := int(d / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

// buildMIME assembles a multipart/alternative body. A message without an
// HTML part is sent as plain text.
func buildMIME(from string, msg port.MailMessage) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", from)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("MIME-Version", "1.0")

	if msg.HTML == "" {
		header("Content-Type", "text/plain; charset=utf-8")
		buf.WriteString("\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	header("Content-Type", "multipart/alternative; boundary="+w.Boundary())
	buf.WriteString("\r\n")

	parts := []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("mail: build part: %w", err)
		}
		if _, err := pw.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("mail: write part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("mail: close multipart: %w", err)
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}
