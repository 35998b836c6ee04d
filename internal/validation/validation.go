// Package validation checks untrusted names: archive entries, article
// identifiers and upload file names.
package validation

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// Limits applied to untrusted archives.
const (
	MaxUnpackedSize    = 4 << 30 // bytes written per archive
	MaxEntries         = 100000  // entries per archive
	MaxFilenameLength  = 255
	MaxPathLength      = 4096
	MaxArticleIDLength = 128
)

var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrInvalidArticleID = errors.New("invalid article id")
)

// SanitizePath validates an archive entry name and returns it cleaned,
// using the OS separator. Both slash styles are accepted as separators.
// Absolute names and any ".." element are rejected, so the result always
// stays inside the directory it is joined to.
func SanitizePath(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if len(name) > MaxPathLength {
		return "", ErrPathTooLong
	}
	if i := strings.IndexFunc(name, unicode.IsControl); i >= 0 {
		return "", fmt.Errorf("%w: control character %q", ErrInvalidCharacter, name[i])
	}

	slashed := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(slashed) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathTraversal, name)
	}
	for _, elem := range strings.Split(slashed, "/") {
		if elem == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
		}
	}

	clean := path.Clean(slashed)
	if clean == "." {
		return "", ErrEmptyPath
	}
	local := filepath.FromSlash(clean)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return local, nil
}

// ValidateFilename checks a single path element.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return ErrInvalidFilename
	case len(name) > MaxFilenameLength:
		return ErrFilenameTooLong
	case name == "." || name == "..":
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
	}
	return nil
}

var articleID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateArticleID accepts identifiers such as "PMC3001" or
// "elife-00001-v2": ASCII letters, digits, dot, hyphen and underscore.
func ValidateArticleID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidArticleID)
	case len(id) > MaxArticleIDLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidArticleID, MaxArticleIDLength)
	case id == "." || id == "..":
		return fmt.Errorf("%w: reserved name", ErrInvalidArticleID)
	case !articleID.MatchString(id):
		return fmt.Errorf("%w: %q has characters outside [A-Za-z0-9._-]", ErrInvalidArticleID, id)
	}
	return nil
}
