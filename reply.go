package mailer

import "strings"

// ReplyCode represents a three-digit SMTP reply code as defined in RFC 5321 §4.2.
type ReplyCode int

// Reply code classes (RFC 5321 §4.2.1).
const (
	ClassPositiveCompletion   = 2 // 2xx
	ClassPositiveIntermediate = 3 // 3xx
	ClassTransientNegative    = 4 // 4xx
	ClassPermanentNegative    = 5 // 5xx
)

// Reply codes consumed by the client.
const (
	ReplyServiceReady      ReplyCode = 220
	ReplyServiceClosing    ReplyCode = 221
	ReplyAuthOK            ReplyCode = 235
	ReplyOK                ReplyCode = 250
	ReplyAuthContinue      ReplyCode = 334
	ReplyStartMailInput    ReplyCode = 354
	ReplyServiceNotAvail   ReplyCode = 421
	ReplyTransactionFailed ReplyCode = 554
)

// Class returns the reply class (first digit): 2, 3, 4, or 5.
func (c ReplyCode) Class() int {
	return int(c) / 100
}

// IsPositive returns true for 2xx and 3xx reply codes.
func (c ReplyCode) IsPositive() bool {
	cl := c.Class()
	return cl == ClassPositiveCompletion || cl == ClassPositiveIntermediate
}

// IsTransient returns true for 4xx reply codes (temporary failures).
func (c ReplyCode) IsTransient() bool {
	return c.Class() == ClassTransientNegative
}

// IsPermanent returns true for 5xx reply codes (permanent failures).
func (c ReplyCode) IsPermanent() bool {
	return c.Class() == ClassPermanentNegative
}

// Reply is one parsed server response. A single-line reply has exactly one
// entry in Lines; continuation lines of a multi-line reply follow in order.
type Reply struct {
	Code  ReplyCode
	Lines []string
}

// Text joins the reply lines with newlines.
func (r *Reply) Text() string {
	return strings.Join(r.Lines, "\n")
}

// AssertCode checks reply against the expected code. A nil reply means the
// connection ended before a reply could be read.
func AssertCode(reply *Reply, expected ReplyCode) error {
	if reply == nil {
		return &ProtocolError{Expected: expected}
	}
	if reply.Code != expected {
		return newProtocolError(reply, expected)
	}
	return nil
}
