package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alexisbouchez/mailer.go"
)

// messageFile is the YAML form of a message. Attachments are read from disk.
type messageFile struct {
	From        mailer.Address   `yaml:"from"`
	ReplyTo     *mailer.Address  `yaml:"reply_to"`
	To          []mailer.Address `yaml:"to"`
	Cc          []mailer.Address `yaml:"cc"`
	Bcc         []mailer.Address `yaml:"bcc"`
	Subject     string           `yaml:"subject"`
	Date        time.Time        `yaml:"date"`
	InReplyTo   string           `yaml:"in_reply_to"`
	References  string           `yaml:"references"`
	Priority    string           `yaml:"priority"`
	Text        string           `yaml:"text"`
	HTML        string           `yaml:"html"`
	Attachments []attachmentFile `yaml:"attachments"`
}

type attachmentFile struct {
	Path        string `yaml:"path"`
	Filename    string `yaml:"filename"`
	ContentType string `yaml:"content_type"`
	Encoding    string `yaml:"encoding"`
}

// parseMessage decodes a message file. Relative attachment paths resolve
// against baseDir.
func parseMessage(r io.Reader, baseDir string) (*mailer.SendRequest, error) {
	var m messageFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}

	req := &mailer.SendRequest{
		From:       m.From,
		ReplyTo:    m.ReplyTo,
		To:         m.To,
		Cc:         m.Cc,
		Bcc:        m.Bcc,
		Subject:    m.Subject,
		Date:       m.Date,
		InReplyTo:  m.InReplyTo,
		References: m.References,
		Priority:   m.Priority,
	}
	if m.Text != "" {
		req.MIMEContent = append(req.MIMEContent, mailer.MIMEContent{
			MimeType:         "text/plain; charset=utf-8",
			TransferEncoding: "quoted-printable",
			Content:          mailer.EncodeQuotedPrintable(m.Text),
		})
	}
	if m.HTML != "" {
		req.MIMEContent = append(req.MIMEContent, mailer.MIMEContent{
			MimeType:         "text/html; charset=utf-8",
			TransferEncoding: "quoted-printable",
			Content:          mailer.EncodeQuotedPrintable(m.HTML),
		})
	}

	for _, a := range m.Attachments {
		att, err := loadAttachment(a, baseDir)
		if err != nil {
			return nil, err
		}
		req.Attachments = append(req.Attachments, att)
	}
	return req, nil
}

func loadAttachment(a attachmentFile, baseDir string) (mailer.Attachment, error) {
	path := a.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mailer.Attachment{}, fmt.Errorf("reading attachment: %w", err)
	}

	name := a.Filename
	if name == "" {
		name = filepath.Base(a.Path)
	}
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	switch mailer.AttachmentEncoding(a.Encoding) {
	case mailer.EncodingText:
		return mailer.TextAttachment(name, ct, string(data)), nil
	case mailer.EncodingBinary:
		return mailer.Attachment{Filename: name, ContentType: ct, Encoding: mailer.EncodingBinary, Content: data}, nil
	case mailer.EncodingBase64, "":
		return mailer.Attachment{Filename: name, ContentType: ct, Encoding: mailer.EncodingBase64, Content: data}, nil
	default:
		return mailer.Attachment{}, fmt.Errorf("attachment %s: unknown encoding %q", name, a.Encoding)
	}
}
