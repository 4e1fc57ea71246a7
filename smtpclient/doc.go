// Package smtpclient sends mail over a single SMTP connection (RFC 5321).
//
// # Quick Start
//
// [New] dials the server and starts the session handshake in the
// background. [Client.Send] waits for it and delivers one message:
//
//	c := smtpclient.New(ctx, smtpclient.Config{Hostname: "mail.example.com", Port: 587})
//	defer c.Close()
//	err := c.Send(ctx, &mailer.SendRequest{...})
//
// # Handshake
//
// The client reads the 220 greeting, sends EHLO and records the advertised
// extensions ([Client.Features]). When STARTTLS is offered on a plain
// connection it upgrades and repeats EHLO. With [Config.Auth] set it
// authenticates with AUTH LOGIN, which is refused with
// [mailer.ErrInsecureConnection] on an unencrypted connection unless
// [Config.AllowInsecure] is set. A NOOP round then flushes stray replies.
// [Config.TLS] selects implicit TLS (port 465) instead.
//
// # Concurrency
//
// Send may be called from many goroutines. Transactions are put on the
// wire one at a time in call order; [Client.IsSending] and [Client.Idle]
// expose the queue state. A rejected transaction is reset with RSET and
// does not affect the ones queued behind it. A send that fails on the
// connection itself, or whose context ends mid-transaction, closes the
// connection; every later Send then returns an error wrapping [ErrBroken].
//
// # Errors
//
// Handshake and send errors are [*mailer.ProtocolError] for unexpected
// replies, [*mailer.TransportError] for I/O failures and
// [*mailer.ValidationError] for requests rejected before any I/O.
//
// # Metrics
//
// Handshake and send outcomes, send latency and queue wait are exported
// through the default Prometheus registry under mailer_smtpclient_*.
package smtpclient
