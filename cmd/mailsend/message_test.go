package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbouchez/mailer.go"
)

func TestParseMessage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-1.4"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("grüße"), 0o600))

	src := `
from: {name: Alice, mail: alice@example.com}
reply_to: {mail: support@example.com}
to:
  - {name: Bob, mail: bob@example.com}
bcc:
  - {mail: audit@example.com}
subject: Report
date: 2024-03-01T12:00:00Z
text: "Hello Bob"
html: "<p>Hello Bob</p>"
attachments:
  - path: report.pdf
    content_type: application/pdf
  - path: notes.txt
    content_type: text/plain
    encoding: text
`
	req, err := parseMessage(strings.NewReader(src), dir)
	require.NoError(t, err)
	require.NoError(t, req.Validate())

	assert.Equal(t, "alice@example.com", req.From.Mail)
	require.NotNil(t, req.ReplyTo)
	assert.Equal(t, "support@example.com", req.ReplyTo.Mail)
	assert.Equal(t, []mailer.Address{{Name: "Bob", Mail: "bob@example.com"}}, req.To)
	assert.Len(t, req.Bcc, 1)
	assert.Equal(t, 2024, req.Date.Year())

	require.Len(t, req.MIMEContent, 2)
	assert.Equal(t, "text/plain; charset=utf-8", req.MIMEContent[0].MimeType)
	assert.Equal(t, "quoted-printable", req.MIMEContent[0].TransferEncoding)
	assert.Equal(t, "text/html; charset=utf-8", req.MIMEContent[1].MimeType)

	require.Len(t, req.Attachments, 2)
	assert.Equal(t, mailer.Attachment{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Encoding:    mailer.EncodingBase64,
		Content:     []byte("%PDF-1.4"),
	}, req.Attachments[0])
	assert.Equal(t, mailer.EncodingText, req.Attachments[1].Encoding)
	assert.Equal(t, "gr=C3=BC=C3=9Fe", string(req.Attachments[1].Content))
}

func TestParseMessage_UnknownField(t *testing.T) {
	_, err := parseMessage(strings.NewReader("from: {mail: a@example.com}\nsubjct: typo\n"), t.TempDir())
	require.Error(t, err)
}

func TestParseMessage_MissingAttachment(t *testing.T) {
	src := "attachments:\n  - path: nope.bin\n"
	_, err := parseMessage(strings.NewReader(src), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading attachment")
}

func TestParseMessage_BadEncoding(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("x"), 0o600))
	_, err := parseMessage(strings.NewReader("attachments:\n  - path: a.bin\n    encoding: rot13\n"), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rot13")
}
