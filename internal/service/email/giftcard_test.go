package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGiftCardEmail(t *testing.T) {
	subject, body := GiftCardEmail(GiftCardMessage{
		RecipientName:  "Clara <Oswald>",
		CardNumber:     "GC12345678",
		ActivationCode: "4821",
		Amount:         "50.00 CAD",
		Message:        "Happy birthday!",
	})

	assert.Equal(t, "You received a 50.00 CAD gift card", subject)
	assert.Contains(t, body, "Hello Clara &lt;Oswald&gt;,")
	assert.Contains(t, body, "GC12345678")
	assert.Contains(t, body, "4821")
	assert.Contains(t, body, "<blockquote>Happy birthday!</blockquote>")
}

func TestLayoutWrapsContent(t *testing.T) {
	out := Layout("Bloom & Co", "  <p>hi</p>  ")
	assert.Contains(t, out, "<title>Bloom &amp; Co</title>")
	assert.Contains(t, out, "<p>hi</p>\n")
}

func TestSendRequiresHost(t *testing.T) {
	s := NewEmailSender("", "587", "shop@example.com", "pw", "Bloom", false)
	assert.False(t, s.Configured())
	assert.Error(t, s.Send("a@example.com", "x", "y"))
}
