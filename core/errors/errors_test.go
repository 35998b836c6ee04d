package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewMalformed("no <article> root", nil), "malformed document: no <article> root"},
		{NewMalformed("parsing XML", fmt.Errorf("unexpected EOF")), "malformed document: parsing XML: unexpected EOF"},
		{NewUnresolved("figure", "f9"), "unresolved figure reference: f9"},
		{NewNotFound("article", "PMC3001"), "article not found: PMC3001"},
		{NewNotFound("catalog", ""), "catalog not found"},
		{NewValidation("article_id", "empty"), "validation failed for article_id: empty"},
		{NewValidation("", "bad"), "validation failed: bad"},
		{NewIO("read", "fig1.tif", fs.ErrNotExist), "failed to read fig1.tif: file does not exist"},
		{NewIO("digest", "", fs.ErrClosed), "failed to digest: file already closed"},
		{NewParse("date", "", "month 13"), "failed to parse date: month 13"},
		{NewParse("XML", "a.xml", "bad token"), "failed to parse XML at a.xml: bad token"},
		{NewUnsupported("archive", "S1.rar"), "unsupported archive: S1.rar"},
		{NewUnsupported("codec", ""), "unsupported codec"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestSentinels(t *testing.T) {
	underlying := fmt.Errorf("unexpected EOF")
	tests := []struct {
		name string
		err  error
		is   []error
	}{
		{"malformed", NewMalformed("parsing XML", underlying), []error{ErrMalformedDocument, underlying}},
		{"unresolved", NewUnresolved("bibr", "b1"), []error{ErrUnresolved}},
		{"not found", NewNotFound("job", "x"), []error{ErrNotFound}},
		{"validation", NewValidation("f", "m"), []error{ErrInvalidInput}},
		{"parse", NewParse("date", "", "m"), []error{ErrInvalidInput}},
		{"io", NewIO("read", "p", fs.ErrNotExist), []error{ErrIO, fs.ErrNotExist}},
		{"unsupported", NewUnsupported("x", ""), []error{ErrUnsupported}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("converting: %w", tt.err)
			for _, target := range tt.is {
				if !Is(wrapped, target) {
					t.Errorf("Is(%v, %v) = false", wrapped, target)
				}
			}
		})
	}
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("job: %w", NewIO("unpack", "bundle.zip", fs.ErrPermission))
	var ioErr *IOError
	if !As(err, &ioErr) || ioErr.Path != "bundle.zip" {
		t.Errorf("As = %v", ioErr)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{NewUnresolved("figure", "f9"), false},
		{fmt.Errorf("rendering xref: %w", NewUnresolved("figure", "f9")), false},
		{NewIO("read", "f1.jpg", fs.ErrNotExist), true},
		{NewMalformed("no <article> root", nil), true},
		{errors.New("plain"), true},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewMalformed("x", NewIO("read", "a.xml", fs.ErrNotExist)), "MALFORMED_DOCUMENT"},
		{NewValidation("f", "m"), "INVALID_INPUT"},
		{NewParse("date", "", "m"), "INVALID_INPUT"},
		{fmt.Errorf("lookup: %w", NewNotFound("blob", "ab")), "NOT_FOUND"},
		{NewUnsupported("archive", ""), "UNSUPPORTED"},
		{NewUnresolved("fig", "f1"), "UNRESOLVED"},
		{NewIO("unpack", "s.zip", fs.ErrClosed), "IO_ERROR"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
