package mailer

import (
	"fmt"
	"strings"
	"time"
)

// AttachmentEncoding selects how an attachment body is put on the wire.
type AttachmentEncoding string

const (
	// EncodingBinary writes the attachment bytes unchanged.
	EncodingBinary AttachmentEncoding = "binary"
	// EncodingText writes pre-encoded quoted-printable text.
	EncodingText AttachmentEncoding = "text"
	// EncodingBase64 writes the bytes base64-encoded in 76-column lines.
	EncodingBase64 AttachmentEncoding = "base64"
)

// MIMEContent is one alternative representation of the message body,
// e.g. text/plain and text/html.
type MIMEContent struct {
	MimeType         string
	TransferEncoding string // optional Content-Transfer-Encoding value
	Content          string
}

// Attachment is a file carried in its own multipart/mixed part.
type Attachment struct {
	Filename    string
	ContentType string
	Encoding    AttachmentEncoding
	Content     []byte
}

// SendRequest describes one message. Bcc recipients are addressed in the
// envelope only and never written into a header.
type SendRequest struct {
	From        Address
	ReplyTo     *Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	Date        time.Time
	InReplyTo   string
	References  string
	Priority    string
	MIMEContent []MIMEContent
	Attachments []Attachment
}

// Recipients returns every envelope recipient in RCPT order: To, Cc, Bcc.
func (r *SendRequest) Recipients() []Address {
	out := make([]Address, 0, len(r.To)+len(r.Cc)+len(r.Bcc))
	out = append(out, r.To...)
	out = append(out, r.Cc...)
	return append(out, r.Bcc...)
}

// Validate reports the first reason the request cannot be sent.
func (r *SendRequest) Validate() error {
	if err := validateAddress("from", r.From); err != nil {
		return err
	}
	if r.ReplyTo != nil {
		if err := validateAddress("reply-to", *r.ReplyTo); err != nil {
			return err
		}
	}

	if len(r.To)+len(r.Cc)+len(r.Bcc) == 0 {
		return &ValidationError{Field: "recipients", Reason: "at least one To, Cc or Bcc address is required"}
	}
	lists := []struct {
		field string
		addrs []Address
	}{{"to", r.To}, {"cc", r.Cc}, {"bcc", r.Bcc}}
	for _, l := range lists {
		for i, a := range l.addrs {
			if err := validateAddress(fmt.Sprintf("%s[%d]", l.field, i), a); err != nil {
				return err
			}
		}
	}

	headers := []struct{ field, value string }{
		{"subject", r.Subject},
		{"in-reply-to", r.InReplyTo},
		{"references", r.References},
		{"priority", r.Priority},
	}
	for _, h := range headers {
		if err := validateHeaderValue(h.field, h.value); err != nil {
			return err
		}
	}

	for i, c := range r.MIMEContent {
		field := fmt.Sprintf("mime content[%d]", i)
		if c.MimeType == "" {
			return &ValidationError{Field: field, Reason: "missing MIME type"}
		}
		if err := validateHeaderValue(field, c.MimeType+c.TransferEncoding); err != nil {
			return err
		}
	}

	for i, a := range r.Attachments {
		field := fmt.Sprintf("attachment[%d]", i)
		if a.Filename == "" {
			return &ValidationError{Field: field, Reason: "missing filename"}
		}
		if a.ContentType == "" {
			return &ValidationError{Field: field, Reason: "missing content type"}
		}
		if err := validateHeaderValue(field, a.Filename+a.ContentType); err != nil {
			return err
		}
		switch a.Encoding {
		case EncodingBinary, EncodingText, EncodingBase64:
		default:
			return &ValidationError{Field: field, Reason: fmt.Sprintf("unknown encoding %q", a.Encoding)}
		}
	}
	return nil
}

func validateAddress(field string, a Address) error {
	if why := a.Check(); why != "" {
		return &ValidationError{Field: field, Reason: why}
	}
	return validateHeaderValue(field, a.Name)
}

// validateHeaderValue rejects values that would break out of their header line.
func validateHeaderValue(field, v string) error {
	if strings.ContainsAny(v, "\r\n") {
		return &ValidationError{Field: field, Reason: "contains a line break"}
	}
	return nil
}
