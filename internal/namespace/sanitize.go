package namespace

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/soundscapes/server/internal/apperr"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces name to a safe ASCII base name. Path separators
// become underscores and anything outside [A-Za-z0-9_.-] is dropped, so the
// result can never climb out of its directory. It may return "".
func SanitizeFilename(name string) string {
	folded := norm.NFKD.String(name)
	var b strings.Builder
	for _, r := range folded {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	s := strings.NewReplacer("/", " ", "\\", " ").Replace(b.String())
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}

// SanitizeCategory trims name and removes path separators, control
// characters and leading dots. Unicode letters and inner spaces survive.
func SanitizeCategory(name string) string {
	s := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ".")
	return strings.TrimSpace(s)
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func category(name string) (string, error) {
	s := SanitizeCategory(name)
	if s == "" {
		return "", apperr.Validation("missing category name")
	}
	return s, nil
}

// existingName validates a reference to a file that should already exist.
// It must be a plain base name; nothing is rewritten.
func existingName(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return "", apperr.Validation("missing filename")
	}
	if s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return "", apperr.Validation("invalid filename %q", name)
	}
	return s, nil
}
