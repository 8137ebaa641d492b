package ingest

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpoflow/internal"
)

const rawWithAttachment = "From: Acme Orders <orders@acme.example>\r\n" +
	"To: supply@vendor.example\r\n" +
	"Subject: Purchase Order PO-1001\r\n" +
	"Message-Id: <po-1@acme.example>\r\n" +
	"Date: Mon, 24 Aug 2026 09:00:00 +0400\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please find our order attached.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; name=\"po-1001.txt\"\r\n" +
	"Content-Disposition: attachment; filename=\"po-1001.txt\"\r\n" +
	"\r\n" +
	"SUNFLOWER OIL TIN 3 TIN\r\n" +
	"--b1--\r\n"

const rawBodyOnly = "From: orders@acme.example\r\n" +
	"Subject: order needed\r\n" +
	"Message-Id: <po-2@acme.example>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"3 TIN SUNFLOWER OIL please\r\n"

func TestParseRawMessageWithAttachment(t *testing.T) {
	dir := t.TempDir()

	msg, err := ParseRawMessage(internal.FetchedMailMessage{Provider: "imap", Raw: []byte(rawWithAttachment)}, dir)
	require.NoError(t, err)

	assert.Equal(t, "<po-1@acme.example>", msg.MessageID)
	assert.Equal(t, "Purchase Order PO-1001", msg.Subject)
	assert.Equal(t, "orders@acme.example", msg.SenderEmail)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "po-1001.txt", msg.Attachments[0].Filename)

	content, err := os.ReadFile(msg.Attachments[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "SUNFLOWER OIL TIN")
}

func TestParseRawMessageSynthesizesBodyAttachment(t *testing.T) {
	dir := t.TempDir()

	msg, err := ParseRawMessage(internal.FetchedMailMessage{Provider: "imap", Raw: []byte(rawBodyOnly)}, dir)
	require.NoError(t, err)

	require.Len(t, msg.Attachments, 1)
	assert.True(t, strings.HasSuffix(msg.Attachments[0].Filename, ".txt"))

	content, err := os.ReadFile(msg.Attachments[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "SUNFLOWER OIL")
}

func TestBodyPreviewIsBounded(t *testing.T) {
	long := strings.Repeat("a", 2000)
	assert.Len(t, BodyPreview(long), 500)
	assert.Equal(t, "short", BodyPreview("  short  "))
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "orders@acme.example", extractAddress("Acme Orders <Orders@Acme.Example>"))
	assert.Equal(t, "plain@x.example", extractAddress("plain@x.example"))
}
