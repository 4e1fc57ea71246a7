// Package envelope turns a SendRequest into the ordered SMTP conversation
// that delivers it: envelope commands, the DATA body line by line and the
// terminating dot.
package envelope

import (
	"encoding/base64"
	"mime"
	"strings"
	"time"

	"github.com/alexisbouchez/mailer.go"
)

// Op identifies what a Step puts on the wire.
type Op int

const (
	// OpCommand is an SMTP command; its reply must carry Step.Expect.
	OpCommand Op = iota
	// OpLine is one line of the DATA body, dot-stuffed, no reply.
	OpLine
	// OpBlock is raw DATA body bytes, dot-stuffed, no reply.
	OpBlock
	// OpEnd terminates DATA with "."; its reply must carry Step.Expect.
	OpEnd
)

func (o Op) String() string {
	switch o {
	case OpCommand:
		return "command"
	case OpLine:
		return "line"
	case OpBlock:
		return "block"
	case OpEnd:
		return "end"
	}
	return "unknown"
}

// Multipart boundaries. Fixed strings keep the output reproducible.
const (
	MixedBoundary       = "attachment"
	AlternativeBoundary = "message"
)

// DateLayout is the RFC 5322 date-time format used for the Date header.
const DateLayout = time.RFC1123Z

// base64LineLen is the maximum encoded line length (RFC 2045 §6.8).
const base64LineLen = 76

// Step is one unit of the conversation.
type Step struct {
	Op     Op
	Line   string
	Block  []byte
	Expect mailer.ReplyCode
}

// ExpectsReply reports whether the step is followed by a server reply.
func (s Step) ExpectsReply() bool {
	return s.Op == OpCommand || s.Op == OpEnd
}

type builder struct {
	steps []Step
}

func (b *builder) command(line string, expect mailer.ReplyCode) {
	b.steps = append(b.steps, Step{Op: OpCommand, Line: line, Expect: expect})
}

func (b *builder) line(line string) {
	b.steps = append(b.steps, Step{Op: OpLine, Line: line})
}

func (b *builder) header(name, value string) {
	b.line(name + ": " + value)
}

func (b *builder) block(p []byte) {
	b.steps = append(b.steps, Step{Op: OpBlock, Block: p})
}

// Build returns the steps that deliver req. It does not validate req; call
// req.Validate first. A zero Date is replaced by the current time.
func Build(req *mailer.SendRequest) []Step {
	b := &builder{}

	b.command("MAIL FROM:"+req.From.Path(), mailer.ReplyOK)
	for _, rcpt := range req.Recipients() {
		b.command("RCPT TO:"+rcpt.Path(), mailer.ReplyOK)
	}
	b.command("DATA", mailer.ReplyStartMailInput)

	writeHeaders(b, req)
	writeBody(b, req)

	b.steps = append(b.steps, Step{Op: OpEnd, Line: ".", Expect: mailer.ReplyOK})
	return b.steps
}

func writeHeaders(b *builder, req *mailer.SendRequest) {
	b.header("Subject", mime.QEncoding.Encode("utf-8", req.Subject))
	b.header("From", req.From.String())
	if len(req.To) > 0 {
		b.header("To", joinAddresses(req.To))
	}
	if len(req.Cc) > 0 {
		b.header("Cc", joinAddresses(req.Cc))
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	b.header("Date", date.Format(DateLayout))

	if req.InReplyTo != "" {
		b.header("In-Reply-To", req.InReplyTo)
	}
	if req.References != "" {
		b.header("References", req.References)
	}
	if req.ReplyTo != nil {
		b.header("Reply-To", req.ReplyTo.String())
	}
	if req.Priority != "" {
		b.header("Priority", req.Priority)
	}
	b.header("MIME-Version", "1.0")
}

func writeBody(b *builder, req *mailer.SendRequest) {
	b.header("Content-Type", "multipart/mixed; boundary="+MixedBoundary)
	b.line("")
	b.line("--" + MixedBoundary)

	b.header("Content-Type", "multipart/alternative; boundary="+AlternativeBoundary)
	b.line("")
	for _, part := range req.MIMEContent {
		b.line("--" + AlternativeBoundary)
		b.header("Content-Type", part.MimeType)
		if part.TransferEncoding != "" {
			b.header("Content-Transfer-Encoding", part.TransferEncoding)
		}
		b.line("")
		b.line(normalizeNewlines(part.Content))
	}
	b.line("--" + AlternativeBoundary + "--")
	b.line("")

	for _, a := range req.Attachments {
		b.line("--" + MixedBoundary)
		b.header("Content-Type", withParam(a.ContentType, "name", a.Filename))
		b.header("Content-Disposition", withParam("attachment", "filename", a.Filename))

		switch a.Encoding {
		case mailer.EncodingText:
			b.header("Content-Transfer-Encoding", "quoted-printable")
			b.line("")
			b.line(normalizeNewlines(string(a.Content)))
		case mailer.EncodingBase64:
			b.header("Content-Transfer-Encoding", "base64")
			b.line("")
			for _, l := range wrapBase64(a.Content) {
				b.line(l)
			}
		default:
			b.header("Content-Transfer-Encoding", "binary")
			b.line("")
			b.block(a.Content)
		}
	}
	b.line("--" + MixedBoundary + "--")
}

func joinAddresses(addrs []mailer.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ";")
}

// withParam appends a parameter to a media type value, quoting or RFC 2231
// encoding it as needed. Unparseable values get the parameter appended raw.
func withParam(value, key, param string) string {
	mediatype, params, err := mime.ParseMediaType(value)
	if err != nil {
		return value + "; " + key + "=" + param
	}
	params[key] = param
	if s := mime.FormatMediaType(mediatype, params); s != "" {
		return s
	}
	return value + "; " + key + "=" + param
}

// normalizeNewlines converts bare LF and lone CR line breaks to CRLF.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func wrapBase64(p []byte) []string {
	enc := base64.StdEncoding.EncodeToString(p)
	lines := make([]string, 0, len(enc)/base64LineLen+1)
	for len(enc) > base64LineLen {
		lines = append(lines, enc[:base64LineLen])
		enc = enc[base64LineLen:]
	}
	return append(lines, enc)
}
