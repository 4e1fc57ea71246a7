package mailer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInsecureConnection is returned when credentials are configured but the
// connection was not upgraded to TLS and insecure authentication was not
// explicitly allowed. Nothing credential-related has been written when it is
// returned.
var ErrInsecureConnection = errors.New("mailer: refusing to authenticate over an insecure connection")

// ProtocolError reports a server reply that did not carry the expected code,
// or a reply that never arrived (Code is zero in that case).
type ProtocolError struct {
	Code         ReplyCode
	Expected     ReplyCode
	EnhancedCode EnhancedCode
	Args         []string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("mailer: empty reply, expected %d", e.Expected)
	}
	msg := strings.Join(e.Args, " ")
	if !e.EnhancedCode.IsZero() {
		return fmt.Sprintf("mailer: %d %s %s (expected %d)", e.Code, e.EnhancedCode, msg, e.Expected)
	}
	return fmt.Sprintf("mailer: %d %s (expected %d)", e.Code, msg, e.Expected)
}

// Temporary reports whether the server signalled a transient failure (4xx).
func (e *ProtocolError) Temporary() bool {
	return e.Code.IsTransient()
}

// Empty reports whether the error stands for a missing reply.
func (e *ProtocolError) Empty() bool {
	return e.Code == 0
}

func newProtocolError(reply *Reply, expected ReplyCode) *ProtocolError {
	args := append([]string(nil), reply.Lines...)
	enhanced := EnhancedCode{}
	if len(args) > 0 {
		if ec, rest, ok := ParseEnhancedCode(args[0]); ok {
			enhanced = ec
			args[0] = rest
		}
	}
	return &ProtocolError{
		Code:         reply.Code,
		Expected:     expected,
		EnhancedCode: enhanced,
		Args:         args,
	}
}

// TransportError wraps a connection-level failure (dial, read, write or TLS
// handshake).
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("mailer: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports a SendRequest that cannot be put on the wire.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("mailer: invalid %s: %s", e.Field, e.Reason)
}

// ParseEnhancedCode parses an RFC 3463 status code from the beginning of a
// reply text line and returns it along with the remaining text.
func ParseEnhancedCode(text string) (EnhancedCode, string, bool) {
	code, rest, _ := strings.Cut(text, " ")
	segments := strings.Split(code, ".")
	if len(segments) != 3 {
		return EnhancedCode{}, text, false
	}

	var n [3]int
	for i, seg := range segments {
		v, err := strconv.Atoi(seg)
		if err != nil {
			return EnhancedCode{}, text, false
		}
		n[i] = v
	}
	if n[0] < 2 || n[0] > 5 {
		return EnhancedCode{}, text, false
	}
	return EnhancedCode{Class: n[0], Subject: n[1], Detail: n[2]}, rest, true
}
