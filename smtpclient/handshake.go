package smtpclient

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/alexisbouchez/mailer.go"
	"github.com/alexisbouchez/mailer.go/internal/textproto"
)

// handshake takes a fresh connection to the ready state: greeting, EHLO,
// STARTTLS when offered, AUTH LOGIN when configured, then a drain round.
func (c *Client) handshake(ctx context.Context, dial dialFunc) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	c.setState(StateConnecting)
	nc, err := dial(ctx)
	if err != nil {
		return &mailer.TransportError{Op: "dial " + c.addr, Err: err}
	}
	c.conn = textproto.NewConn(nc)
	if _, ok := nc.(*tls.Conn); ok {
		c.secure = true
	}

	// Unblock pending reads when ctx ends, including on Close.
	stop := context.AfterFunc(ctx, func() { nc.SetDeadline(time.Now()) })
	defer stop()
	c.conn.SetDeadlineFromContext(ctx)
	defer c.conn.SetDeadlineFromContext(context.Background())

	c.setState(StateAwaitingGreeting)
	greeting, err := c.expect(mailer.ReplyServiceReady)
	if err != nil {
		return err
	}
	c.log.Debug().Str("greeting", greeting.Text()).Msg("connected")

	c.setState(StateNegotiatingFeatures)
	reply, err := c.cmd("EHLO "+c.localName, mailer.ReplyOK)
	if err != nil {
		return err
	}
	c.features = mailer.ParseEHLOResponse(reply.Lines)

	if c.features.Has(mailer.ExtSTARTTLS) && !c.secure {
		c.setState(StateUpgradingTLS)
		if err := c.startTLS(ctx); err != nil {
			return err
		}
	}

	if c.cfg.Auth != nil {
		if !c.secure && !c.cfg.AllowInsecure {
			return mailer.ErrInsecureConnection
		}
		c.setState(StateAuthenticating)
		if err := c.auth(mailer.LoginAuth(c.cfg.Auth.Username, c.cfg.Auth.Password)); err != nil {
			return err
		}
	}

	return c.drain()
}

// startTLS upgrades the connection (RFC 3207) and repeats EHLO. The second
// EHLO reply is read but not interpreted.
func (c *Client) startTLS(ctx context.Context) error {
	if _, err := c.cmd("STARTTLS", mailer.ReplyServiceReady); err != nil {
		return err
	}
	if _, err := c.conn.UpgradeTLS(ctx, c.tlsConfig()); err != nil {
		return &mailer.TransportError{Op: "tls handshake", Err: err}
	}
	c.secure = true
	c.conn.SetDeadlineFromContext(ctx)

	if err := c.writeLine("EHLO " + c.localName); err != nil {
		return err
	}
	_, err := c.read()
	return err
}

// auth runs AUTH LOGIN: the username answers the first 334, the password
// the second, and the server must then reply 235.
func (c *Client) auth(mech mailer.SASLMechanism) error {
	reply, err := c.cmd("AUTH "+mech.Name(), mailer.ReplyAuthContinue)
	if err != nil {
		return err
	}

	for _, expect := range []mailer.ReplyCode{mailer.ReplyAuthContinue, mailer.ReplyAuthOK} {
		resp, err := mech.Next(challenge(reply))
		if err != nil {
			return fmt.Errorf("mailer: AUTH %s: %w", mech.Name(), err)
		}
		if err := c.writeSecret(base64.StdEncoding.EncodeToString(resp)); err != nil {
			return err
		}
		if reply, err = c.expect(expect); err != nil {
			return err
		}
	}
	return nil
}

// challenge decodes a 334 challenge. Servers that send plain text get it
// passed through unchanged.
func challenge(reply *mailer.Reply) []byte {
	text := reply.Text()
	if b, err := base64.StdEncoding.DecodeString(text); err == nil {
		return b
	}
	return []byte(text)
}
