package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum        = regexp.MustCompile(`[^a-z0-9]`)
	multiUnderscore = regexp.MustCompile(`_+`)
)

// NormalizeFilename rewrites a filename so it is safe on both Unix and
// Windows filesystems and stable across workers:
//
//   - accented characters fold to their ASCII base letter
//   - anything that is not a letter or digit becomes an underscore
//   - everything is lowercased
//   - dots inside the name (not the extension separator) become underscores
//   - runs of underscores collapse, leading/trailing underscores drop
//
// "My Movie (2023) [1080p].MKV" becomes "my_movie_2023_1080p.mkv".
func NormalizeFilename(filename string) string {
	name := filename
	ext := ""
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		name = filename[:idx]
		ext = filename[idx+1:]
	}

	name = normalizePart(name)
	ext = normalizePart(ext)

	if ext != "" {
		return name + "." + ext
	}
	return name
}

func normalizePart(part string) string {
	part = foldASCII(part)
	part = strings.ToLower(part)
	part = nonAlnum.ReplaceAllString(part, "_")
	part = multiUnderscore.ReplaceAllString(part, "_")
	return strings.Trim(part, "_")
}

// foldASCII decomposes accented characters and drops the combining marks, so
// "é" contributes "e" rather than an underscore.
func foldASCII(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
