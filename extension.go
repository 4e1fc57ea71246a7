package mailer

import "strings"

// Extension represents an SMTP service extension keyword (RFC 5321 §2.2).
type Extension string

// Extension keywords the client acts on or reports.
const (
	ExtSTARTTLS   Extension = "STARTTLS"
	ExtAUTH       Extension = "AUTH"
	ExtSIZE       Extension = "SIZE"
	ExtPIPELINING Extension = "PIPELINING"
	Ext8BITMIME   Extension = "8BITMIME"
)

// Feature is one keyword advertised in an EHLO reply with its parameters.
type Feature struct {
	Keyword Extension
	Params  string
}

// Features is the ordered, duplicate-free set of extensions a server
// advertised. Keywords are upper-cased.
type Features []Feature

// Has reports whether the set includes the given keyword.
func (f Features) Has(ext Extension) bool {
	for _, feat := range f {
		if feat.Keyword == ext {
			return true
		}
	}
	return false
}

// Param returns the parameter string for the given keyword.
func (f Features) Param(ext Extension) string {
	for _, feat := range f {
		if feat.Keyword == ext {
			return feat.Params
		}
	}
	return ""
}

// Keywords returns the advertised keywords in order.
func (f Features) Keywords() []string {
	out := make([]string, len(f))
	for i, feat := range f {
		out[i] = string(feat.Keyword)
	}
	return out
}

// ParseEHLOResponse parses the lines of a 250 EHLO reply into Features.
// The first line is the server greeting and is skipped. A keyword repeated
// later in the reply keeps its first position and parameters.
func ParseEHLOResponse(lines []string) Features {
	var feats Features
	for i, line := range lines {
		if i == 0 {
			continue // Skip the greeting line (hostname).
		}
		keyword, params, _ := strings.Cut(strings.TrimSpace(line), " ")
		if keyword == "" {
			continue
		}
		ext := Extension(strings.ToUpper(keyword))
		if feats.Has(ext) {
			continue
		}
		feats = append(feats, Feature{Keyword: ext, Params: strings.TrimSpace(params)})
	}
	return feats
}
