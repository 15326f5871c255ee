package email

import (
	"fmt"
	"html"
	"strings"
)

type GiftCardMessage struct {
	RecipientName  string
	CardNumber     string
	ActivationCode string
	Amount         string
	Message        string
}

// GiftCardEmail renders the subject and body sent to a gift card recipient.
func GiftCardEmail(m GiftCardMessage) (subject, body string) {
	subject = fmt.Sprintf("You received a %s gift card", m.Amount)

	var b strings.Builder
	greeting := "Hello"
	if name := strings.TrimSpace(m.RecipientName); name != "" {
		greeting += " " + html.EscapeString(name)
	}
	fmt.Fprintf(&b, "<p>%s,</p>\n", greeting)
	fmt.Fprintf(&b, "<p>Someone sent you a gift card worth <strong>%s</strong>.</p>\n", html.EscapeString(m.Amount))
	if msg := strings.TrimSpace(m.Message); msg != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", html.EscapeString(msg))
	}
	fmt.Fprintf(&b, "<p>Card number: <span class=\"code\">%s</span></p>\n", html.EscapeString(m.CardNumber))
	fmt.Fprintf(&b, "<p>Activation code: <span class=\"code\">%s</span></p>\n", html.EscapeString(m.ActivationCode))
	b.WriteString("<p>Present both at checkout, in store or online.</p>")
	return subject, b.String()
}
