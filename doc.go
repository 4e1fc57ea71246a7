// Package mailer provides the shared types for composing and submitting
// email over a single SMTP connection.
//
// This package contains reply codes, the error taxonomy, EHLO feature
// parsing, address validation, the [SendRequest] message model and the
// LOGIN SASL mechanism. The connection itself is driven by the
// [github.com/alexisbouchez/mailer.go/smtpclient] package.
//
// # Reply Codes
//
// [ReplyCode] constants cover the codes the client consumes. [AssertCode]
// is the single place where a server [Reply] is checked against the code
// the protocol expects; a mismatch yields a [ProtocolError].
//
// # Errors
//
// Failures are typed: [ProtocolError] for unexpected or missing replies,
// [TransportError] for connection-level I/O failures, [ValidationError] for
// requests rejected before anything is written, and [ErrInsecureConnection]
// when credentials would be sent over a plaintext connection.
//
// # Messages
//
// A [SendRequest] carries the envelope (From, To, Cc, Bcc), the header
// fields, the alternative body parts ([MIMEContent]) and [Attachment]s.
// Bcc recipients are only ever used for RCPT commands.
package mailer
