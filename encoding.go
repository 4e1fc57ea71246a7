package mailer

import (
	"mime/quotedprintable"
	"strings"
)

// EncodeQuotedPrintable encodes s as quoted-printable text (RFC 2045
// §6.7) with CRLF line endings, ready for a part declared with
// Content-Transfer-Encoding: quoted-printable.
func EncodeQuotedPrintable(s string) string {
	var b strings.Builder
	w := quotedprintable.NewWriter(&b)
	// Writes to a strings.Builder cannot fail.
	w.Write([]byte(s))
	w.Close()
	return b.String()
}

// TextAttachment returns an attachment whose text is quoted-printable
// encoded.
func TextAttachment(filename, contentType, text string) Attachment {
	return Attachment{
		Filename:    filename,
		ContentType: contentType,
		Encoding:    EncodingText,
		Content:     []byte(EncodeQuotedPrintable(text)),
	}
}
