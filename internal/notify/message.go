// Package notify delivers change events from the event channel as email.
package notify

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/sells-group/countrysync/internal/model"
)

// Message is a plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// FormatCountryAdded renders the notification for a country_added event.
func FormatCountryAdded(brand string, ev model.ChangeEvent) Message {
	name := ev.RecordName
	return Message{
		Subject: fmt.Sprintf("[%s] Country added: %s", brand, name),
		Body: fmt.Sprintf("A country was added.\n\nName: %s\nID: %s\n\nThis is an automated notification.",
			name, ev.RecordID),
	}
}

// Bytes renders m as an RFC 5322 message with CRLF line endings.
// Non-ASCII subjects are Q-encoded.
func (m Message) Bytes(now time.Time) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", m.From)
	header("To", strings.Join(m.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	for _, line := range strings.Split(body, "\n") {
		// Dot-stuffing is left to the SMTP data writer.
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.Bytes()
}
