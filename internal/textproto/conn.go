// Package textproto implements the client side of the SMTP wire protocol:
// line reading/writing, multi-line reply parsing, dot-stuffed DATA
// streams and the in-place TLS upgrade. It sits between net.Conn and
// smtpclient.
package textproto

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/alexisbouchez/mailer.go"
)

// MaxReplyLineLen is a generous limit for reply lines to prevent memory exhaustion.
const MaxReplyLineLen = 2048

// ErrLineTooLong is returned when a reply line exceeds the read limit.
var ErrLineTooLong = errors.New("textproto: line too long")

// Conn wraps a net.Conn with buffered reading and writing for SMTP protocol I/O.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// NewConn creates a new protocol Conn wrapping the given network connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		conn: c,
		r:    bufio.NewReaderSize(c, 4096),
		w:    bufio.NewWriterSize(c, 4096),
	}
}

// ReplaceConn replaces the underlying net.Conn (used after TLS upgrade)
// and resets the buffered reader/writer.
func (c *Conn) ReplaceConn(nc net.Conn) {
	c.conn = nc
	c.r = bufio.NewReaderSize(nc, 4096)
	c.w = bufio.NewWriterSize(nc, 4096)
}

// NetConn returns the underlying net.Conn.
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// SetDeadlineFromContext sets the connection read/write deadline from a
// context's deadline. If the context has no deadline, the deadline is cleared.
func (c *Conn) SetDeadlineFromContext(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
	} else {
		c.conn.SetDeadline(time.Time{})
	}
}

// UpgradeTLS runs a client TLS handshake over the current connection and
// swaps the stream for the encrypted one.
func (c *Conn) UpgradeTLS(ctx context.Context, config *tls.Config) (*tls.Conn, error) {
	tlsConn := tls.Client(c.conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	c.ReplaceConn(tlsConn)
	return tlsConn, nil
}

// ReadLine reads a single \r\n-terminated line from the connection.
// The returned line does NOT include the trailing \r\n.
func (c *Conn) ReadLine(maxLen int) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		line = append(line, chunk...)
		if err != nil {
			return "", err
		}
		if !isPrefix {
			break
		}
		if len(line) > maxLen {
			// Drain the rest of the line.
			for isPrefix {
				_, isPrefix, err = c.r.ReadLine()
				if err != nil {
					break
				}
			}
			return "", fmt.Errorf("%w (%d bytes, max %d)", ErrLineTooLong, len(line), maxLen)
		}
	}
	if len(line) > maxLen-2 { // -2 for the \r\n we already consumed
		return "", fmt.Errorf("%w (%d bytes, max %d)", ErrLineTooLong, len(line)+2, maxLen)
	}
	return string(line), nil
}

// WriteLine writes a line followed by \r\n and flushes the buffer.
func (c *Conn) WriteLine(line string) error {
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadReply reads a single-line or multi-line SMTP reply from the connection.
// Multi-line replies use the "code-hyphen" continuation convention (RFC 5321 §4.2).
// Read errors, including io.EOF, are returned unwrapped.
func (c *Conn) ReadReply() (*mailer.Reply, error) {
	var lines []string
	for {
		line, err := c.ReadLine(MaxReplyLineLen)
		if err != nil {
			return nil, err
		}

		if len(line) < 3 {
			return nil, errors.New("textproto: reply line too short")
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return nil, fmt.Errorf("textproto: invalid reply code %q: %w", line[:3], err)
		}

		if len(line) == 3 {
			// "250\r\n" with no text is always a final line.
			lines = append(lines, "")
			return &mailer.Reply{Code: mailer.ReplyCode(code), Lines: lines}, nil
		}

		sep := line[3]
		text := line[4:]

		switch sep {
		case '-':
			lines = append(lines, text)
		case ' ':
			lines = append(lines, text)
			return &mailer.Reply{Code: mailer.ReplyCode(code), Lines: lines}, nil
		default:
			return nil, fmt.Errorf("textproto: invalid reply separator %q", sep)
		}
	}
}

// DotWriter returns a writer for the body of a DATA command. Lines
// starting with "." are doubled and Close writes the terminating ".\r\n"
// (RFC 5321 §4.5.2).
func (c *Conn) DotWriter() *DotWriter {
	return newDotWriter(c.w)
}
