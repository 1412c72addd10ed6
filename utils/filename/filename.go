// Package filename builds download filenames for resolved episodes.
package filename

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unsafeChars = regexp.MustCompile(`(?i)[^a-z0-9]`)
	underscores = regexp.MustCompile(`_+`)
	suffixChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// Safe folds accents away and replaces everything but ASCII letters and
// digits with underscores, collapsing runs.
func Safe(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	out := unsafeChars.ReplaceAllString(folded, "_")
	out = underscores.ReplaceAllString(out, "_")
	return strings.Trim(out, "_")
}

// Episode returns "<title>_<episode><suffix>.mp4". Empty parts are skipped;
// with nothing usable the result is "episode.mp4".
func Episode(title, episode, suffix string) string {
	parts := make([]string, 0, 2)
	if t := Safe(title); t != "" {
		parts = append(parts, t)
	}
	if e := Safe(episode); e != "" {
		parts = append(parts, e)
	}
	if len(parts) == 0 {
		parts = append(parts, "episode")
	}
	return strings.Join(parts, "_") + suffixChars.ReplaceAllString(suffix, "") + ".mp4"
}
