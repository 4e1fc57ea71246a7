package mailer

import (
	"mime"
	"strings"
	"unicode/utf8"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Name string `yaml:"name"`
	Mail string `yaml:"mail"`
}

// Path returns the address formatted for MAIL FROM and RCPT TO ("<local@domain>").
func (a Address) Path() string {
	return "<" + a.Mail + ">"
}

// String returns the address formatted for a header field. Non-ASCII
// display names are RFC 2047 encoded.
func (a Address) String() string {
	if a.Name == "" {
		return a.Path()
	}
	return mime.QEncoding.Encode("utf-8", a.Name) + " " + a.Path()
}

// Check reports why Mail is not a usable RFC 5321 mailbox, or "" if it is.
// The local-part may be a dot-atom or a quoted string; the domain a
// hostname (internationalized labels allowed) or an address literal.
func (a Address) Check() string {
	s := a.Mail
	if s == "" {
		return "empty address"
	}
	at := strings.LastIndexByte(s, '@')
	switch {
	case at < 0:
		return "missing @ in address"
	case at == 0:
		return "empty local-part"
	case at == len(s)-1:
		return "empty domain"
	}
	if why := checkLocalPart(s[:at]); why != "" {
		return why
	}
	return checkDomain(s[at+1:])
}

const (
	maxLocalPart = 64  // RFC 5321 §4.5.3.1.1
	maxDomain    = 255 // RFC 5321 §4.5.3.1.2
	maxLabel     = 63
)

func checkLocalPart(local string) string {
	if len(local) > maxLocalPart {
		return "local-part too long"
	}
	if n := len(local); n >= 2 && local[0] == '"' && local[n-1] == '"' {
		return checkQuoted(local[1 : n-1])
	}
	if local[0] == '.' || local[len(local)-1] == '.' || strings.Contains(local, "..") {
		return "misplaced dot in local-part"
	}
	if strings.IndexFunc(local, func(r rune) bool { return r != '.' && !isAtext(r) }) >= 0 {
		return "invalid character in local-part"
	}
	return ""
}

func checkQuoted(s string) string {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return "unescaped quote in quoted local-part"
		}
	}
	if escaped {
		return "trailing backslash in quoted local-part"
	}
	return ""
}

func checkDomain(domain string) string {
	if len(domain) > maxDomain {
		return "domain too long"
	}
	if domain[0] == '[' {
		if domain[len(domain)-1] != ']' {
			return "unclosed address literal"
		}
		return ""
	}
	if !utf8.ValidString(domain) {
		return "invalid UTF-8 in domain"
	}
	for _, label := range strings.Split(domain, ".") {
		switch {
		case label == "":
			return "empty label in domain"
		case len(label) > maxLabel:
			return "domain label too long"
		case label[0] == '-' || label[len(label)-1] == '-':
			return "domain label cannot start or end with hyphen"
		case strings.IndexFunc(label, func(r rune) bool { return r != '-' && !isAlnum(r) && r < utf8.RuneSelf }) >= 0:
			return "invalid character in domain"
		}
	}
	return ""
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// isAtext reports RFC 5322 atext characters.
func isAtext(r rune) bool {
	return isAlnum(r) || strings.ContainsRune("!#$%&'*+-/=?^_`{|}~", r)
}
