package sanitizer

import (
	"regexp"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestText(t *testing.T) {
	s := NewHTMLSanitizer()

	tests := []struct {
		in   string
		want string
	}{
		{"John Doe", "John Doe"},
		{"", ""},
		{"<b>bold</b> move", "bold move"},
		{"<script>alert(1)</script>hi", "hi"},
		{"Tom & Jerry", "Tom &amp; Jerry"},
	}
	for _, tt := range tests {
		if got := s.Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMessageKeepsMailFormatting(t *testing.T) {
	s := NewHTMLSanitizer()

	in := `<b>Name:</b> John Doe<br /><br /><img src="http://tracker/x.gif"><a href="javascript:alert(1)">x</a>`
	got := s.Message(in)

	if !strings.Contains(got, "<b>Name:</b> John Doe<br/><br/>") {
		t.Errorf("formatting lost: %s", got)
	}
	if strings.Contains(got, "<img") {
		t.Errorf("img survived: %s", got)
	}
	if strings.Contains(got, "javascript:") {
		t.Errorf("javascript url survived: %s", got)
	}
}

// Feature: mail-sanitizer, Property 1: script tags never survive
func TestProperty1_ScriptRemoval(t *testing.T) {
	s := NewHTMLSanitizer()

	rapid.Check(t, func(t *rapid.T) {
		body := rapid.StringMatching(`[a-zA-Z0-9 \(\);=]{6,30}`).Draw(t, "body")
		before := rapid.StringMatching(`[a-zA-Z0-9 ]*`).Draw(t, "before")
		after := rapid.StringMatching(`[a-zA-Z0-9 ]*`).Draw(t, "after")

		in := before + "<script>" + body + "</script>" + after
		for _, out := range []string{s.Text(in), s.Message(in)} {
			if regexp.MustCompile(`(?i)<script`).MatchString(out) {
				t.Fatalf("script tag in %q", out)
			}
			if strings.Contains(out, body) {
				t.Fatalf("script body %q in %q", body, out)
			}
		}
	})
}

// Feature: mail-sanitizer, Property 2: text output contains no markup
func TestProperty2_TextHasNoTags(t *testing.T) {
	s := NewHTMLSanitizer()

	rapid.Check(t, func(t *rapid.T) {
		in := rapid.StringMatching(`[a-z<>/ "'=&]{0,40}`).Draw(t, "in")
		out := s.Text(in)
		if strings.ContainsAny(out, "<>") {
			t.Fatalf("Text(%q) = %q contains markup", in, out)
		}
	})
}
