package models

import (
	"regexp"
	"strings"
)

// StreamCandidate is one upstream-hosted, obfuscated link and its display label.
type StreamCandidate struct {
	Label      string `json:"name"`
	SourceLink string `json:"link"`
}

var (
	languagePattern   = regexp.MustCompile(`(?i)\((eng|jpn|dub|sub)\)`)
	resolutionPattern = regexp.MustCompile(`\b(\d{3,4})p?\b`)
)

// Language returns the parenthesised language tag of the label, lowercased,
// or an empty string when the label carries none.
func (c StreamCandidate) Language() string {
	m := languagePattern.FindStringSubmatch(c.Label)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}

// Quality returns the first resolution token of the label ("1080", "720").
func (c StreamCandidate) Quality() string {
	m := resolutionPattern.FindStringSubmatch(c.Label)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ResolvedLink is the outcome of resolving one candidate. Exactly one of
// DirectURL and Error is set. SourceLink is only carried by degraded results
// so the raw upstream link can still be surfaced.
type ResolvedLink struct {
	Label      string `json:"label"`
	DirectURL  string `json:"directUrl,omitempty"`
	Error      string `json:"error,omitempty"`
	SourceLink string `json:"sourceLink,omitempty"`
}

// OK reports whether the link resolved to a relay URL.
func (l ResolvedLink) OK() bool {
	return l.DirectURL != "" && l.Error == ""
}

// Display renders the link the way it is shown to users: the relay URL on
// success, the raw source link annotated with "(Bypass Failed)" for degraded
// results, and the bare error otherwise.
func (l ResolvedLink) Display() string {
	switch {
	case l.OK():
		return l.DirectURL
	case l.SourceLink != "":
		return l.SourceLink + " (Bypass Failed)"
	default:
		return l.Error
	}
}

// ResolveMode selects how bypass failures are reported.
type ResolveMode string

const (
	// ResolveStrict reports a bypass failure as a plain error.
	ResolveStrict ResolveMode = "strict"
	// ResolveLegacy keeps the raw source link next to the error.
	ResolveLegacy ResolveMode = "legacy"
)

// Intent selects the relay directives of a resolved URL.
type Intent string

const (
	IntentPlayback Intent = "playback"
	IntentDownload Intent = "download"
)

// ParseResolveMode maps query values onto a ResolveMode, defaulting to strict.
func ParseResolveMode(value string) ResolveMode {
	if strings.EqualFold(strings.TrimSpace(value), string(ResolveLegacy)) {
		return ResolveLegacy
	}
	return ResolveStrict
}

// ParseIntent maps query values onto an Intent, defaulting to playback.
func ParseIntent(value string) Intent {
	if strings.EqualFold(strings.TrimSpace(value), string(IntentDownload)) {
		return IntentDownload
	}
	return IntentPlayback
}
