package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/countrysync/internal/model"
)

func TestFormatCountryAdded(t *testing.T) {
	msg := FormatCountryAdded("UST", model.ChangeEvent{
		Kind:       model.EventCountryAdded,
		RecordID:   "abc",
		RecordName: "Mockland",
	})
	assert.Equal(t, "[UST] Country added: Mockland", msg.Subject)
	assert.Equal(t, "A country was added.\n\nName: Mockland\nID: abc\n\nThis is an automated notification.", msg.Body)
}

func TestMessage_Bytes(t *testing.T) {
	msg := Message{
		From:    "admin@example.test",
		To:      []string{"a@example.test", "b@example.test"},
		Subject: "[UST] Country added: Åland",
		Body:    "line one\nline two",
	}
	out := string(msg.Bytes(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	assert.Contains(t, out, "From: admin@example.test\r\n")
	assert.Contains(t, out, "To: a@example.test, b@example.test\r\n")
	assert.Contains(t, out, "Subject: =?utf-8?q?")
	assert.Contains(t, out, "Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nline one\r\nline two\r\n"))
}

func TestMessage_BytesASCIISubjectUnencoded(t *testing.T) {
	out := string(Message{Subject: "plain"}.Bytes(time.Now()))
	assert.Contains(t, out, "Subject: plain\r\n")
}
