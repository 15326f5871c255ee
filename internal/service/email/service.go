// internal/service/email/service.go
package email

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strings"
)

// EmailSender handles outgoing emails via SMTP.
type EmailSender struct {
	smtpHost string
	smtpPort string
	username string
	password string
	fromName string
	secure   bool
}

// NewEmailSender creates a new SMTP email sender.
func NewEmailSender(host, port, user, pass, fromName string, secure bool) *EmailSender {
	return &EmailSender{
		smtpHost: host,
		smtpPort: port,
		username: user,
		password: pass,
		fromName: fromName,
		secure:   secure,
	}
}

// Configured reports whether an SMTP host was set.
func (e *EmailSender) Configured() bool {
	return e != nil && e.smtpHost != ""
}

// Send sends an email with a subject and an HTML body wrapped in the shop layout.
func (e *EmailSender) Send(to, subject, bodyHTML string) error {
	if !e.Configured() {
		return fmt.Errorf("smtp is not configured")
	}

	from := fmt.Sprintf("%s <%s>", e.fromName, e.username)
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			Layout(e.fromName, bodyHTML),
	)

	serverAddr := e.smtpHost + ":" + e.smtpPort

	if e.secure {
		// Port 465 - implicit TLS
		conn, err := tls.Dial("tcp", serverAddr, &tls.Config{ServerName: e.smtpHost})
		if err != nil {
			return fmt.Errorf("tls dial failed: %w", err)
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, e.smtpHost)
		if err != nil {
			return fmt.Errorf("smtp client failed: %w", err)
		}
		defer client.Quit()

		auth := smtp.PlainAuth("", e.username, e.password, e.smtpHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
		return e.sendMail(client, to, msg)
	}

	// Port 587 - STARTTLS
	auth := smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	if err := smtp.SendMail(serverAddr, auth, e.username, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail failed: %w", err)
	}
	return nil
}

func (e *EmailSender) sendMail(client *smtp.Client, to string, msg []byte) error {
	if err := client.Mail(e.username); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

// Layout wraps content in the shop's email frame.
func Layout(shopName, content string) string {
	name := html.EscapeString(shopName)
	header := `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8" />
	<title>` + name + `</title>
	<style>
		body { font-family: Georgia, serif; background-color: #fbf7f4; padding: 30px; }
		.container { max-width: 600px; margin: auto; background: #fff; border-radius: 10px; overflow: hidden; }
		.header { background: #b5476b; color: white; text-align: center; padding: 20px; font-size: 22px; }
		.body { padding: 25px; color: #333; line-height: 1.6; }
		.code { font-family: monospace; font-size: 20px; letter-spacing: 2px; }
		.footer { background: #f3ece8; color: #666; text-align: center; padding: 15px; font-size: 13px; }
	</style>
</head>
<body>
<div class="container">
	<div class="header">` + name + `</div>
	<div class="body">
`
	footer := `
	</div>
	<div class="footer"><p>` + name + `</p></div>
</div>
</body>
</html>
`
	return header + strings.TrimSpace(content) + footer
}
