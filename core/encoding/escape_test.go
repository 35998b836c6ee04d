package encoding

import "testing"

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{`say "hi"`, "say &quot;hi&quot;"},
		{"&amp;", "&amp;amp;"},
	}
	for _, tt := range tests {
		if got := EscapeHTML(tt.input); got != tt.want {
			t.Errorf("EscapeHTML(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEscapeAttr(t *testing.T) {
	if got := EscapeAttr(`it's "x"`); got != "it&#39;s &quot;x&quot;" {
		t.Errorf("EscapeAttr() = %q", got)
	}
}

func TestStripNewlines(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"no breaks", "no breaks"},
		{"line one\nline two", "line oneline two"},
		{"crlf\r\nend", "crlfend"},
		{"\n  indented", "  indented"},
	}
	for _, tt := range tests {
		if got := StripNewlines(tt.input); got != tt.want {
			t.Errorf("StripNewlines(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeSpace(t *testing.T) {
	if got := NormalizeSpace("  Results\n\tof   the  study "); got != "Results of the study" {
		t.Errorf("NormalizeSpace() = %q", got)
	}
	if got := NormalizeSpace(" \n "); got != "" {
		t.Errorf("NormalizeSpace(blank) = %q", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"PLoS ONE", "plos-one"},
		{"  The Journal of Cell Biology ", "the-journal-of-cell-biology"},
		{"10.1371/journal.pone.0012345", "10-1371-journal-pone-0012345"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
