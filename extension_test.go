package mailer

import (
	"reflect"
	"testing"
)

func TestParseEHLOResponse(t *testing.T) {
	lines := []string{
		"mail.example.com Hello",
		"SIZE 52428800",
		"PIPELINING",
		"AUTH PLAIN LOGIN",
		"STARTTLS",
		"8BITMIME",
	}

	feats := ParseEHLOResponse(lines)

	if !feats.Has(ExtSIZE) {
		t.Error("expected SIZE extension")
	}
	if feats.Param(ExtSIZE) != "52428800" {
		t.Errorf("SIZE param = %q, want %q", feats.Param(ExtSIZE), "52428800")
	}
	if feats.Param(ExtPIPELINING) != "" {
		t.Errorf("PIPELINING param = %q, want empty", feats.Param(ExtPIPELINING))
	}
	if feats.Param(ExtAUTH) != "PLAIN LOGIN" {
		t.Errorf("AUTH param = %q, want %q", feats.Param(ExtAUTH), "PLAIN LOGIN")
	}

	want := []string{"SIZE", "PIPELINING", "AUTH", "STARTTLS", "8BITMIME"}
	if got := feats.Keywords(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords() = %v, want %v", got, want)
	}
}

func TestParseEHLOResponse_SingleLine(t *testing.T) {
	feats := ParseEHLOResponse([]string{"mail.example.com greets you"})
	if len(feats) != 0 {
		t.Errorf("expected no features from a single-line reply, got %v", feats)
	}
}

func TestParseEHLOResponse_CaseInsensitiveAndUnique(t *testing.T) {
	lines := []string{
		"hostname",
		"size 1000",
		"starttls",
		"STARTTLS",
		"Size 2000",
		"",
	}
	feats := ParseEHLOResponse(lines)

	if len(feats) != 2 {
		t.Fatalf("len = %d, want 2 (%v)", len(feats), feats)
	}
	if !feats.Has(ExtSTARTTLS) {
		t.Error("expected STARTTLS (case-insensitive)")
	}
	if feats.Param(ExtSIZE) != "1000" {
		t.Errorf("SIZE param = %q, want first occurrence %q", feats.Param(ExtSIZE), "1000")
	}
}

func TestFeatures_Has_Missing(t *testing.T) {
	var feats Features
	if feats.Has(ExtSTARTTLS) {
		t.Error("empty Features should not have STARTTLS")
	}
}
